package dockerclient

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/build"
	sdkimage "github.com/docker/go-sdk/image"
)

func (dc *dockerClient) build(ctx context.Context, dockerfile string, tag string, labels map[string]string) error {
	buf, err := dockerfileContext(dockerfile)
	if err != nil {
		return err
	}

	_, err = sdkimage.Build(
		ctx,
		buf,
		tag,
		sdkimage.WithBuildClient(dc.client),
		sdkimage.WithBuildOptions(build.ImageBuildOptions{
			Dockerfile: "Dockerfile",
			Remove:     true, // remove intermediate containers
			Labels:     labels,
		}),
	)
	if err != nil {
		return fmt.Errorf("image build: %w", err)
	}
	return nil
}

// dockerfileContext returns a build context holding only the Dockerfile.
func dockerfileContext(dockerfile string) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tarWriter := tar.NewWriter(&buf)

	dockerFileBytes := []byte(dockerfile)
	tarHeader := &tar.Header{
		Name: "Dockerfile",
		Mode: 0o600,
		Size: int64(len(dockerFileBytes)),
	}

	if err := tarWriter.WriteHeader(tarHeader); err != nil {
		return nil, fmt.Errorf("write tar header: %w", err)
	}
	if _, err := tarWriter.Write(dockerFileBytes); err != nil {
		return nil, fmt.Errorf("write dockerfile: %w", err)
	}
	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	return &buf, nil
}
