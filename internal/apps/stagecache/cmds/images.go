package stagecache

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/0xa1bed0/stagecache/internal/runtime"
	"github.com/0xa1bed0/stagecache/internal/ui"
	"github.com/spf13/cobra"
)

func newImagesCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "images",
		Aliases: []string{"ls"},
		Short:   "List images published by the local runtime",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtime.FromContextOrPanic(cmd.Context())

			be, err := openState(rt.Ctx(), global.cfg)
			if err != nil {
				return err
			}
			defer be.Close()

			images, err := be.images.List(rt.Ctx())
			if err != nil {
				return err
			}
			if len(images) == 0 {
				fmt.Println("No images found")
				return nil
			}

			table := ui.NewTable(
				ui.Column{Header: "REF"},
				ui.Column{Header: "STAGE"},
				ui.Column{Header: "LAYERS", Align: ui.AlignRight},
				ui.Column{Header: "FINGERPRINT"},
				ui.Column{Header: "SCHEMA"},
				ui.Column{Header: "CREATED"},
			)
			for _, img := range images {
				table.AddRow(
					img.Ref,
					img.Stage,
					strconv.Itoa(len(img.History.Entries)),
					img.History.Last().Short(),
					img.Schema,
					img.CreatedAt.Local().Format(time.DateTime),
				)
			}
			return table.Render(os.Stdout)
		},
	}

	return cmd
}
