package stagecache

import (
	"fmt"

	"github.com/0xa1bed0/stagecache/internal/dockerfile"
	"github.com/spf13/cobra"
)

func newDockerfileCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "dockerfile",
		Short: "Print the build description as a multi-stage Dockerfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := dockerfile.Load(file)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), f.Dockerfile().String())
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "stagecache.yaml", "build description")
	return cmd
}
