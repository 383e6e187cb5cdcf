package stagecache

import (
	"context"
	"errors"
	"fmt"

	appconfig "github.com/0xa1bed0/stagecache/internal/apps/stagecache/config"
	"github.com/0xa1bed0/stagecache/internal/build"
	"github.com/0xa1bed0/stagecache/internal/cache"
	"github.com/0xa1bed0/stagecache/internal/dockerclient"
	"github.com/0xa1bed0/stagecache/internal/graph"
	"github.com/0xa1bed0/stagecache/internal/state"
)

// backend bundles the runtime-specific implementations a build needs.
type backend struct {
	executor  build.Executor
	history   cache.HistorySource
	publisher build.Publisher
	seeds     graph.SeedResolver

	layers *state.LayerStore
	images *state.ImageStore

	closers []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openState opens the sqlite stores. Both runtimes record built layers there.
func openState(ctx context.Context, cfg appconfig.Config) (*backend, error) {
	db, err := state.Open(ctx, state.Config{Path: cfg.StateDB})
	if err != nil {
		return nil, err
	}
	b := &backend{closers: []func() error{db.Close}}

	if b.layers, err = state.NewLayerStore(db); err != nil {
		b.Close()
		return nil, err
	}
	if b.images, err = state.NewImageStore(db); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func openBackend(ctx context.Context, cfg appconfig.Config) (*backend, error) {
	b, err := openState(ctx, cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Runtime {
	case appconfig.RuntimeLocal:
		b.executor = build.NoopExecutor{}
		b.history = b.images
		b.publisher = b.images
		b.seeds = graph.ReferenceSeeds
	case appconfig.RuntimeDocker:
		dc, err := dockerclient.NewDockerClient(ctx)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, dc.Close)
		images := dockerclient.NewImages(dc)
		b.executor = dockerclient.NewExecutor(dc)
		b.history = images
		b.publisher = images
		b.seeds = images
	default:
		b.Close()
		return nil, fmt.Errorf("unknown runtime %q", cfg.Runtime)
	}
	return b, nil
}
