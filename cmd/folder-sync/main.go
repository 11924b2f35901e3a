package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpfrdev/folder-sync/internal/config"
	"github.com/jpfrdev/folder-sync/internal/sync"
	"github.com/jpfrdev/folder-sync/internal/utils"
	"github.com/jpfrdev/folder-sync/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "folder-sync SOURCE REPLICA INTERVAL LOGFILE",
	Short: "One-way periodic folder mirroring",
	Long: `folder-sync keeps REPLICA an exact copy of SOURCE by reconciling the two
trees once per INTERVAL (e.g. 30s, 5m, 1h, 2d). Every file operation is
logged to LOGFILE and to the console.`,
	Args:    cobra.ExactArgs(4),
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd)
	},
	RunE: runSync,
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().Bool("once", false, "run a single pass and exit")
	rootCmd.Flags().Bool("watch", false, "also trigger a pass when the source changes")
	rootCmd.Flags().Bool("dry-run", false, "log what would change without touching the replica")
	rootCmd.Flags().StringArray("exclude", nil, "gitignore-style pattern to exclude, repeatable")
	rootCmd.Flags().Int("hash-cache", 0, "fingerprint cache size, 0 disables caching")
}

func bindFlags(cmd *cobra.Command) error {
	for _, name := range []string{"once", "watch", "dry-run", "exclude", "hash-cache"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}

	viper.SetEnvPrefix("FOLDERSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	interval, err := config.ParseInterval(args[2])
	if err != nil {
		return err
	}

	cfg := &config.Config{
		SourceDir:  args[0],
		ReplicaDir: args[1],
		Interval:   interval,
		LogFile:    args[3],
		Once:       viper.GetBool("once"),
		Watch:      viper.GetBool("watch"),
		DryRun:     viper.GetBool("dry-run"),
		Excludes:   viper.GetStringSlice("exclude"),
		HashCache:  viper.GetInt("hash-cache"),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// config is good: anything from here on is a runtime failure, not usage
	cmd.SilenceUsage = true

	logger, closer, err := utils.NewLogger(os.Stdout, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("folder-sync start", "version", version.Short(), "pid", os.Getpid())

	mgr, err := sync.NewManager(cfg, logger)
	if err != nil {
		return err
	}

	defer logger.Info("Bye!")
	return mgr.Start(cmd.Context())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
