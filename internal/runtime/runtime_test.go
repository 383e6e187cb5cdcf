package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFromContext(t *testing.T) {
	rt := New()
	defer rt.CancelCtx()

	if FromContext(rt.Ctx()) != rt {
		t.Fatal("runtime not found in its own context")
	}
	if FromContext(context.Background()) != nil {
		t.Fatal("unexpected runtime in background context")
	}
}

func TestGoNamedRecordsPanic(t *testing.T) {
	rt := New()

	rt.GoNamed("boom", func() { panic("kaput") })
	err := rt.Wait()
	if err == nil || !strings.Contains(err.Error(), "panic in boom: kaput") {
		t.Fatalf("Wait = %v", err)
	}
	select {
	case <-rt.Ctx().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after panic")
	}
}

func TestOnShutdownRunsAfterCancel(t *testing.T) {
	rt := New()

	ran := make(chan struct{})
	rt.OnShutdown(func(ctx context.Context) {
		if ctx.Err() != nil {
			t.Error("cleanup context already done")
		}
		close(ran)
	})

	rt.CancelCtx()
	if err := rt.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	select {
	case <-ran:
	default:
		t.Fatal("shutdown hook did not run")
	}
}

func TestExitErrorUnwraps(t *testing.T) {
	inner := errors.New("2 instructions failed")
	err := error(&ExitError{Code: 3, Err: inner})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("errors.As = %v", err)
	}
	if !errors.Is(err, inner) {
		t.Fatal("ExitError does not unwrap")
	}
	if (&ExitError{Code: 4}).Error() != "exit status 4" {
		t.Fatal("bare ExitError message")
	}
}
