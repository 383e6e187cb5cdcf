// Package dockerclient runs build instructions on a Docker engine and keeps
// layer histories in image labels.
package dockerclient

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/docker/go-sdk/client"
)

// engine is the slice of the Docker API this package needs.
type engine interface {
	// inspect returns the image ID and labels of ref.
	inspect(ctx context.Context, ref string) (id string, labels map[string]string, err error)
	// build builds dockerfile (no context besides the Dockerfile itself) and
	// tags the result.
	build(ctx context.Context, dockerfile string, tag string, labels map[string]string) error
}

type dockerClient struct {
	client client.SDKClient
}

// NewDockerClient connects to the engine configured in the environment
// (DOCKER_HOST, docker context).
func NewDockerClient(ctx context.Context) (*dockerClient, error) {
	cli, err := client.New(
		ctx,
		client.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}

	return &dockerClient{
		client: cli,
	}, nil
}

func (dc *dockerClient) inspect(ctx context.Context, ref string) (string, map[string]string, error) {
	img, err := dc.client.ImageInspect(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	var labels map[string]string
	if img.Config != nil {
		labels = img.Config.Labels
	}
	return img.ID, labels, nil
}

func (dc *dockerClient) Close() error {
	return dc.client.Close()
}
