package stagecache

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/0xa1bed0/stagecache/internal/build"
	"github.com/0xa1bed0/stagecache/internal/dockerfile"
	"github.com/0xa1bed0/stagecache/internal/graph"
	"github.com/0xa1bed0/stagecache/internal/logs"
	"github.com/0xa1bed0/stagecache/internal/runtime"
	"github.com/spf13/cobra"
)

type buildOptions struct {
	file        string
	target      string
	cacheFrom   []string
	tags        []string
	concurrency int
}

func attachBuildFlags(cmd *cobra.Command, opts *buildOptions, withTags bool) {
	cmd.Flags().StringVarP(&opts.file, "file", "f", "stagecache.yaml", "build description")
	cmd.Flags().StringVar(&opts.target, "target", "", "stage to build (default: last stage)")
	cmd.Flags().StringArrayVar(&opts.cacheFrom, "cache-from", nil, "image whose layer history may be reused (repeatable)")
	if withTags {
		cmd.Flags().StringArrayVarP(&opts.tags, "tag", "t", nil, "publish a stage as [STAGE=]REF (repeatable, STAGE defaults to the target)")
		cmd.Flags().IntVarP(&opts.concurrency, "jobs", "j", 0, "stages executing at once (default from config, then one per CPU)")
	}
}

func newBuildCmd(global *globalOptions) *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a target stage, reusing cached layers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtime.FromContextOrPanic(cmd.Context())
			ctx := rt.Ctx()

			f, err := dockerfile.Load(opts.file)
			if err != nil {
				return err
			}

			be, err := openBackend(ctx, global.cfg)
			if err != nil {
				return err
			}
			defer be.Close()

			g, err := graph.Build(ctx, f, be.seeds)
			if err != nil {
				return err
			}

			target := opts.target
			if target == "" {
				target = g.Last().Name
			}
			tags, err := parseTags(opts.tags, target)
			if err != nil {
				return err
			}

			concurrency := global.cfg.Concurrency
			if cmd.Flags().Changed("jobs") {
				concurrency = opts.concurrency
			}

			orch := build.New(be.executor, build.Options{
				Concurrency: concurrency,
				Tags:        tags,
				Publisher:   be.publisher,
				Layers:      be.layers,
			})

			logs.Banner("build " + target)
			report, buildErr := orch.Build(ctx, g, target, sourcesOf(be, global, opts))
			if report == nil {
				return buildErr
			}

			if err := renderReport(os.Stdout, report, false); err != nil {
				return err
			}
			if buildErr != nil {
				return &runtime.ExitError{Code: 1, Err: buildErr}
			}
			return nil
		},
	}

	attachBuildFlags(cmd, opts, true)
	return cmd
}

func newPlanCmd(global *globalOptions) *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which instructions would be reused and which built",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtime.FromContextOrPanic(cmd.Context())
			ctx := rt.Ctx()

			f, err := dockerfile.Load(opts.file)
			if err != nil {
				return err
			}

			be, err := openBackend(ctx, global.cfg)
			if err != nil {
				return err
			}
			defer be.Close()

			g, err := graph.Build(ctx, f, be.seeds)
			if err != nil {
				return err
			}

			report, err := build.New(be.executor, build.Options{}).Plan(ctx, g, opts.target, sourcesOf(be, global, opts))
			if err != nil {
				return err
			}
			return renderReport(os.Stdout, report, true)
		},
	}

	attachBuildFlags(cmd, opts, false)
	return cmd
}

func sourcesOf(be *backend, global *globalOptions, opts *buildOptions) build.Sources {
	refs := slices.Concat(global.cfg.CacheFrom, opts.cacheFrom)
	return build.Sources{From: be.history, Refs: refs}
}

// parseTags groups --tag values by stage. A value is STAGE=REF when the part
// before the first "=" is a plain name, otherwise the whole value is a
// reference for defaultStage.
func parseTags(values []string, defaultStage string) (map[string][]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	tags := make(map[string][]string)
	for _, v := range values {
		stage, ref := defaultStage, v
		if name, rest, ok := strings.Cut(v, "="); ok && !strings.ContainsAny(name, ":/@") {
			stage, ref = name, rest
		}
		stage = strings.ToLower(strings.TrimSpace(stage))
		ref = strings.TrimSpace(ref)
		if stage == "" || ref == "" {
			return nil, fmt.Errorf("invalid --tag %q, want [STAGE=]REF", v)
		}
		if !slices.Contains(tags[stage], ref) {
			tags[stage] = append(tags[stage], ref)
		}
	}
	return tags, nil
}
