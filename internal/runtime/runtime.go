// Package runtime owns the process lifetime: the root context, background
// goroutines and the exit path.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/0xa1bed0/stagecache/internal/logs"
)

// ExitError carries a process exit code through cobra.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type Runtime struct {
	runID string

	ctx        context.Context
	cancelFunc context.CancelFunc
	stopSignal context.CancelFunc

	mu              sync.Mutex
	wg              sync.WaitGroup
	shutdownTimeout time.Duration
	firstFailErr    error
}

type runtimeKey struct{}

// New creates the runtime. Its context is cancelled on SIGINT/SIGTERM and
// when the process finalizes.
func New() *Runtime {
	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	baseCtx, cancel := context.WithCancel(signalCtx)

	rt := &Runtime{
		runID:           strconv.FormatInt(time.Now().Unix(), 10),
		cancelFunc:      cancel,
		stopSignal:      stop,
		shutdownTimeout: 5 * time.Second,
	}
	// Commands load the runtime from their context once, at the top of RunE.
	rt.ctx = context.WithValue(baseCtx, runtimeKey{}, rt)
	return rt
}

func (rt *Runtime) Ctx() context.Context {
	return rt.ctx
}

func (rt *Runtime) CancelCtx() {
	rt.cancelFunc()
}

func (rt *Runtime) RunID() string {
	return rt.runID
}

func FromContext(ctx context.Context) *Runtime {
	rt, _ := ctx.Value(runtimeKey{}).(*Runtime)
	return rt
}

func FromContextOrPanic(ctx context.Context) *Runtime {
	rt := FromContext(ctx)
	if rt == nil {
		panic(errors.New("runtime not found in this context"))
	}
	return rt
}

// GoNamed runs fn in a new goroutine. A panic in fn is recorded as the
// runtime's failure and cancels the context.
func (rt *Runtime) GoNamed(name string, fn func()) {
	rt.wg.Go(func() {
		logs.Debugf("%s goroutine start", name)
		defer func() {
			if r := recover(); r != nil {
				rt.fail(fmt.Errorf("panic in %s: %v\n%s", name, r, debug.Stack()))
			}
		}()

		fn()
		logs.Debugf("%s goroutine finish", name)
	})
}

func (rt *Runtime) fail(err error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.firstFailErr == nil {
		rt.firstFailErr = err
		rt.cancelFunc()
	}
}

func (rt *Runtime) Wait() error {
	rt.wg.Wait()

	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.firstFailErr
}

// OnShutdown runs fn once the runtime context is cancelled, with a fresh
// context bounded by the shutdown timeout.
func (rt *Runtime) OnShutdown(fn func(ctx context.Context)) {
	rt.GoNamed("OnShutdown", func() {
		<-rt.ctx.Done()

		cleanupCtx, cancel := context.WithTimeout(context.Background(), rt.shutdownTimeout)
		defer cancel()

		fn(cleanupCtx)
	})
}

// Finalize handles both panic and normal exit and exits the process with a
// non-zero code on failure. Call it in a defer at the top of main.
func (rt *Runtime) Finalize(appName, helpHint string, execErr *error) {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "%s panic: %v\n", appName, r)
		fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
		rt.shutdown()
		logs.Close()
		os.Exit(2)
	}

	waitErr := rt.shutdown()

	code := 0
	switch {
	case execErr != nil && *execErr != nil:
		code = 1
		logs.Errorf("%s error: %v", appName, *execErr)
		var exitErr *ExitError
		if errors.As(*execErr, &exitErr) {
			code = exitErr.Code
		} else if helpHint != "" {
			fmt.Fprintln(os.Stderr, helpHint)
		}
	case waitErr != nil:
		code = 1
		logs.Errorf("%s fail reason: %v", appName, waitErr)
	}

	logs.Close()
	if code != 0 {
		os.Exit(code)
	}
}

// shutdown cancels the context and waits for OnShutdown hooks.
func (rt *Runtime) shutdown() error {
	rt.CancelCtx()
	rt.stopSignal()
	return rt.Wait()
}
