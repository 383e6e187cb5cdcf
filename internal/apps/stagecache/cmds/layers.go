package stagecache

import (
	"fmt"
	"time"

	"github.com/0xa1bed0/stagecache/internal/fingerprint"
	"github.com/0xa1bed0/stagecache/internal/runtime"
	"github.com/0xa1bed0/stagecache/internal/state"
	"github.com/0xa1bed0/stagecache/internal/ui"
	"github.com/spf13/cobra"
)

func newLayersCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layers [FINGERPRINT...]",
		Short: "List layers built on this machine",
		Long: `List the layers recorded in the local state database, oldest first, or
only the ones named by full fingerprint.

LAST USED moves whenever a build reuses a layer; prune --layers counts from it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtime.FromContextOrPanic(cmd.Context())
			ctx := rt.Ctx()

			be, err := openState(ctx, global.cfg)
			if err != nil {
				return err
			}
			defer be.Close()

			var layers []state.Layer
			if len(args) == 0 {
				if layers, err = be.layers.List(ctx); err != nil {
					return err
				}
			}
			for _, arg := range args {
				fp, err := fingerprint.Parse(arg)
				if err != nil {
					return err
				}
				l, found, err := be.layers.Get(ctx, fp)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("layer %s not found", fp.Short())
				}
				layers = append(layers, l)
			}

			out := cmd.OutOrStdout()
			if len(layers) == 0 {
				fmt.Fprintln(out, "No layers found")
				return nil
			}

			table := ui.NewTable(
				ui.Column{Header: "FINGERPRINT"},
				ui.Column{Header: "STAGE"},
				ui.Column{Header: "ARTIFACT", MaxWidth: 48, Truncate: ui.TruncateMiddle},
				ui.Column{Header: "CREATED"},
				ui.Column{Header: "LAST USED"},
			)
			for _, l := range layers {
				table.AddRow(
					l.Fingerprint.Short(),
					l.Stage,
					l.Artifact,
					l.CreatedAt.Local().Format(time.DateTime),
					l.LastUsed.Local().Format(time.DateTime),
				)
			}
			return table.Render(out)
		},
	}

	return cmd
}
