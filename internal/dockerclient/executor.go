package dockerclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xa1bed0/stagecache/internal/build"
	"github.com/0xa1bed0/stagecache/internal/dockerfile"
	"github.com/0xa1bed0/stagecache/internal/logs"
	"github.com/0xa1bed0/stagecache/internal/version"
)

// LayerRepository is the local repository every built layer is tagged in.
const LayerRepository = "stagecache/layer"

// Executor builds one instruction at a time: a Dockerfile made of
// FROM <base artifact> and the instruction, tagged after the fingerprint.
// The tag is the artifact.
type Executor struct {
	eng engine
}

func NewExecutor(dc *dockerClient) *Executor {
	return &Executor{eng: dc}
}

func (e *Executor) Execute(ctx context.Context, step build.Step) (string, error) {
	tag := LayerTag(step)

	if _, _, err := e.eng.inspect(ctx, tag); err == nil {
		logs.Stage(step.Stage).Debugf("layer %s already present", tag)
		return tag, nil
	}

	df := StepDockerfile(step)
	logs.Stage(step.Stage).Debugf("building %s:\n%s", tag, df)

	labels := map[string]string{
		version.FingerprintLabel: step.Fingerprint.String(),
		version.StageLabel:       step.Stage,
	}
	if err := e.eng.build(ctx, df.String(), tag, labels); err != nil {
		return "", err
	}
	return tag, nil
}

// LayerTag is the image reference of the layer a step produces.
func LayerTag(step build.Step) string {
	return LayerRepository + ":" + step.Fingerprint.Hex()
}

// StepDockerfile renders a step as a standalone Dockerfile, with --from
// references pointing at the source artifacts.
func StepDockerfile(step build.Step) dockerfile.Dockerfile {
	return dockerfile.Dockerfile{
		"FROM " + step.BaseArtifact,
		rewriteFrom(step.Instruction.Text, step.Sources),
	}
}

// rewriteFrom replaces --from=<ref> flags with the matching source artifact.
func rewriteFrom(text string, sources []build.Source) string {
	if len(sources) == 0 {
		return text
	}
	artifacts := make(map[string]string, len(sources))
	for _, s := range sources {
		artifacts[strings.ToLower(s.Ref)] = s.Artifact
	}

	fields := strings.Fields(text)
	changed := false
	for i := 1; i < len(fields); i++ {
		f := fields[i]
		if !strings.HasPrefix(f, "--") {
			break
		}
		ref, ok := strings.CutPrefix(f, "--from=")
		if !ok {
			continue
		}
		if art, found := artifacts[strings.ToLower(ref)]; found {
			fields[i] = fmt.Sprintf("--from=%s", art)
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}
