package build

import (
	"context"

	"github.com/0xa1bed0/stagecache/internal/cache"
	"github.com/0xa1bed0/stagecache/internal/dockerfile"
	"github.com/0xa1bed0/stagecache/internal/fingerprint"
)

//go:generate mockgen -source=executor.go -destination=mocks/executor_mock.go -package=mocks
//go:generate mockgen -destination=mocks/history_source_mock.go -package=mocks github.com/0xa1bed0/stagecache/internal/cache HistorySource

// Step is one instruction handed to the runtime.
type Step struct {
	Stage       string
	Index       int
	Instruction dockerfile.Instruction
	Fingerprint fingerprint.Fingerprint

	// BaseArtifact is the layer the instruction runs on: the previous
	// instruction's artifact, the base stage's final artifact or the external
	// base image reference.
	BaseArtifact string

	// Sources resolves every --from reference of the instruction, in order.
	Sources []Source
}

// Source is a resolved --from reference.
type Source struct {
	Ref      string
	Artifact string
}

// Executor runs a single instruction and returns an opaque handle to the
// layer it produced.
type Executor interface {
	Execute(ctx context.Context, step Step) (string, error)
}

// Image is what gets published for a tagged stage.
type Image struct {
	Stage    string
	Artifact string
	History  cache.History
}

// Publisher makes a stage's final layer and its history available under ref,
// so later sessions can use ref as a cache source.
type Publisher interface {
	Publish(ctx context.Context, ref string, img Image) error
}

// LayerRecorder is told about every layer built during a session, and about
// every known layer a session reuses.
type LayerRecorder interface {
	RecordLayer(ctx context.Context, rec cache.LayerRecord) error
	Touch(ctx context.Context, fp fingerprint.Fingerprint) error
}
