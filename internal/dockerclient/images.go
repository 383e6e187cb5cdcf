package dockerclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/0xa1bed0/stagecache/internal/build"
	"github.com/0xa1bed0/stagecache/internal/cache"
	"github.com/0xa1bed0/stagecache/internal/fingerprint"
	"github.com/0xa1bed0/stagecache/internal/version"
	"github.com/distribution/reference"
)

var ErrNoHistory = errors.New("image carries no stagecache history")

// Images reads and writes layer histories kept in image labels. It also
// identifies external base images for fingerprinting.
type Images struct {
	eng engine
}

func NewImages(dc *dockerClient) *Images {
	return &Images{eng: dc}
}

func (im *Images) FetchHistory(ctx context.Context, ref string) (cache.History, error) {
	_, labels, err := im.eng.inspect(ctx, ref)
	if err != nil {
		return cache.History{}, fmt.Errorf("inspect %s: %w", ref, err)
	}
	return decodeHistory(labels)
}

// Publish tags img's artifact as ref by building a label-only image on top
// of it.
func (im *Images) Publish(ctx context.Context, ref string, img build.Image) error {
	labels, err := encodeHistory(img.History)
	if err != nil {
		return err
	}
	labels[version.StageLabel] = img.Stage
	labels[version.FingerprintLabel] = img.History.Last().String()

	df := "FROM " + img.Artifact + "\n"
	if err := im.eng.build(ctx, df, ref, labels); err != nil {
		return fmt.Errorf("publish %s: %w", ref, err)
	}
	return nil
}

// Seed identifies an external base image by its normalized reference, so
// "alpine" and "docker.io/library/alpine:latest" share one identity. What is
// present in the local image store never affects the result; a reference
// pinned by digest is identified by that digest.
func (im *Images) Seed(_ context.Context, ref string) (fingerprint.Fingerprint, error) {
	named, err := reference.ParseNormalizedNamed(strings.TrimSpace(ref))
	if err != nil {
		return fingerprint.Empty, fmt.Errorf("base image %q: %w", ref, err)
	}
	return fingerprint.Seed(reference.TagNameOnly(named).String()), nil
}

func encodeHistory(h cache.History) (map[string]string, error) {
	data, err := json.Marshal(h.Entries)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return map[string]string{
		version.HistoryLabel:       string(data),
		version.HistorySchemaLabel: h.Schema,
	}, nil
}

func decodeHistory(labels map[string]string) (cache.History, error) {
	raw, ok := labels[version.HistoryLabel]
	if !ok {
		return cache.History{}, ErrNoHistory
	}
	h := cache.History{Schema: labels[version.HistorySchemaLabel]}
	if err := json.Unmarshal([]byte(raw), &h.Entries); err != nil {
		return cache.History{}, fmt.Errorf("decode history: %w", err)
	}
	return h, nil
}
