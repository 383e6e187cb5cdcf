package build

import (
	"context"

	"github.com/0xa1bed0/stagecache/internal/logs"
)

// LocalArtifactPrefix marks artifacts produced by NoopExecutor.
const LocalArtifactPrefix = "local:"

// NoopExecutor runs nothing. Each instruction "produces" an artifact named
// after its fingerprint, so the same instruction chain always yields the same
// artifacts.
type NoopExecutor struct{}

func (NoopExecutor) Execute(ctx context.Context, step Step) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	logs.Stage(step.Stage).Debugf("#%d %s", step.Index, step.Instruction.Text)
	return LocalArtifactPrefix + step.Fingerprint.Hex(), nil
}
