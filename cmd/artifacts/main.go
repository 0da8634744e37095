package main

import (
	"fmt"
	"os"

	"recipe-substitution/internal/infrastructure/config"
	"recipe-substitution/internal/pkg/common"

	"github.com/spf13/cobra"
)

// options 所有子命令共用的旗標
type options struct {
	artifactsDir string
	workers      int
	logLevel     string
}

func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "artifacts",
		Short:         "Offline tooling for the substitution engine artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.InitLogger(opts.logLevel, "")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			common.Sync()
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.artifactsDir, "dir", "", "artifacts directory (overrides config)")
	rootCmd.PersistentFlags().IntVar(&opts.workers, "workers", 0, "parallel workers (overrides engine.workers)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level")

	rootCmd.AddCommand(
		statsCmd(opts),
		vectorsCmd(opts),
		diishCmd(opts),
		ghgCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 載入設定並套用命令列覆寫
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if o.artifactsDir != "" {
		cfg.Artifacts.Dir = o.artifactsDir
	}
	if o.workers > 0 {
		cfg.Engine.Workers = o.workers
	}
	return cfg, nil
}
