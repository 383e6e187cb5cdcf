package stagecache

import (
	"os"

	appconfig "github.com/0xa1bed0/stagecache/internal/apps/stagecache/config"
	"github.com/0xa1bed0/stagecache/internal/logs"
	"github.com/0xa1bed0/stagecache/internal/runtime"
	"github.com/0xa1bed0/stagecache/internal/ui"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	verbosity  int
	configPath string
	runtime    string
	stateDB    string

	// cfg is loaded in PersistentPreRunE, flags applied.
	cfg appconfig.Config
}

func Execute(rt *runtime.Runtime) error {
	return newRootCmd(rt).ExecuteContext(rt.Ctx())
}

func newRootCmd(rt *runtime.Runtime) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "stagecache",
		Short: "Cache-aware multi-stage builds",
		Long: `stagecache decides, for every instruction of a multi-stage build, whether
its layer can be reused from a cache source or has to be built, and runs the
build with independent stages in parallel.`,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logs.SetDebugVerbosity(opts.verbosity)
			ui.SetColors(ui.IsTerminal(os.Stdout))
			return opts.load(cmd, rt)
		},
		// we will handle that
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := rootCmd.PersistentFlags()
	flags.CountVarP(&opts.verbosity, "verbose", "v", "increase verbosity level")
	flags.StringVar(&opts.configPath, "config", appconfig.ConfigFile(), "config file")
	flags.StringVar(&opts.runtime, "runtime", "", "instruction runtime: local or docker (default from config)")
	flags.StringVar(&opts.stateDB, "state-db", "", "sqlite state database (default from config)")

	rootCmd.AddCommand(newBuildCmd(opts))
	rootCmd.AddCommand(newPlanCmd(opts))
	rootCmd.AddCommand(newImagesCmd(opts))
	rootCmd.AddCommand(newLayersCmd(opts))
	rootCmd.AddCommand(newDockerfileCmd())
	rootCmd.AddCommand(newPruneCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func (o *globalOptions) load(cmd *cobra.Command, rt *runtime.Runtime) error {
	cfg, err := appconfig.Load(o.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("runtime") {
		cfg.Runtime = o.runtime
	}
	if cmd.Flags().Changed("state-db") {
		cfg.StateDB = o.stateDB
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	if cfg.RunLogs {
		if err := logs.SetFullLogPath(appconfig.RunLogPath(rt.RunID())); err != nil {
			logs.Warnf("can't open run log: %v", err)
		}
	}
	logs.Debugf("config: runtime=%s concurrency=%d state_db=%s", cfg.Runtime, cfg.Concurrency, cfg.StateDB)
	return nil
}
