package stagecache

import (
	"errors"
	"fmt"
	"time"

	"github.com/0xa1bed0/stagecache/internal/logs"
	"github.com/0xa1bed0/stagecache/internal/runtime"
	"github.com/0xa1bed0/stagecache/internal/ui"
	"github.com/spf13/cobra"
)

type pruneOptions struct {
	olderThan time.Duration
	yes       bool
	layers    bool
	images    bool
}

func newPruneCmd(global *globalOptions) *cobra.Command {
	opts := &pruneOptions{}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Forget local layers and images",
		Long: `Remove layer records not used since --older-than and images published
before it from the local state database.

By default both layers and images are pruned. Docker images built by the
docker runtime are not removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtime.FromContextOrPanic(cmd.Context())
			ctx := rt.Ctx()

			if !opts.layers && !opts.images {
				opts.layers, opts.images = true, true
			}
			cutoff := time.Now().Add(-opts.olderThan)

			if !opts.yes {
				ok, err := logs.PromptConfirm(fmt.Sprintf("Prune state older than %s (%s)?", opts.olderThan, cutoff.Format(time.DateTime)))
				if errors.Is(err, ui.ErrNotInteractive) {
					return errors.New("refusing to prune without confirmation, pass --yes")
				}
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Nothing pruned")
					return nil
				}
			}

			be, err := openState(ctx, global.cfg)
			if err != nil {
				return err
			}
			defer be.Close()

			var layers, images int64
			if opts.layers {
				if layers, err = be.layers.DeleteUnusedBefore(ctx, cutoff); err != nil {
					return err
				}
			}
			if opts.images {
				if images, err = be.images.DeleteBefore(ctx, cutoff); err != nil {
					return err
				}
			}
			fmt.Printf("Pruned %d layers and %d images\n", layers, images)
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.olderThan, "older-than", 30*24*time.Hour, "prune state not used for this long")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&opts.layers, "layers", false, "prune layer records only")
	cmd.Flags().BoolVar(&opts.images, "images", false, "prune images only")

	return cmd
}
