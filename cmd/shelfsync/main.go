package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shelfmark/shelfsync/internal/config"
	"github.com/shelfmark/shelfsync/internal/daemon"
	"github.com/shelfmark/shelfsync/internal/utils"
	"github.com/shelfmark/shelfsync/internal/version"
)

var (
	home, _        = os.UserHomeDir()
	defaultDataDir = filepath.Join(home, ".shelfsync")
)

var rootCmd = &cobra.Command{
	Use:     "shelfsync",
	Short:   "Calibre to BookFusion sync daemon",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Config{
			DataDir:         viper.GetString("data_dir"),
			Port:            viper.GetInt("port"),
			LibraryDir:      viper.GetString("library_dir"),
			APIKey:          viper.GetString("api_key"),
			APIBase:         viper.GetString("api_base"),
			IntervalMinutes: viper.GetInt("interval_minutes"),
			SyncTag:         viper.GetString("sync_tag"),
			SyncMode:        viper.GetString("sync_mode"),
			EnvFile:         viper.GetString("env_file"),
		}
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.EnvFile == "" {
			cfg.EnvFile = filepath.Join(cfg.DataDir, "shelfsync.env")
		}

		cmd.SilenceUsage = true
		setupLogging(cfg)

		// One daemon per data dir. A second instance would race the state db
		// and double-fire scheduled runs.
		lock := flock.New(cfg.LockFilePath())
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire data dir lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another shelfsync instance is using %s", cfg.DataDir)
		}
		defer lock.Unlock()

		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return d.Run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("datadir", "d", defaultDataDir, "State directory (ledger db, logs, lock)")
	rootCmd.Flags().IntP("port", "p", config.DefaultPort, "HTTP listen port")
	rootCmd.Flags().StringP("library", "l", config.DefaultLibraryDir, "Calibre library directory")
	rootCmd.Flags().String("env-file", "", "Managed env file (default <datadir>/shelfsync.env)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bindConfig wires flags and the original container env names into viper,
// after loading the managed env file so saved settings act as defaults.
func bindConfig(cmd *cobra.Command) error {
	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("library_dir", cmd.Flags().Lookup("library"))
	viper.BindPFlag("env_file", cmd.Flags().Lookup("env-file"))

	viper.BindEnv("data_dir", "SHELFSYNC_DATA_DIR")

	envFile := viper.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(viper.GetString("data_dir"), "shelfsync.env")
	}
	if err := config.LoadEnvFile(envFile); err != nil {
		return fmt.Errorf("load env file %s: %w", envFile, err)
	}

	viper.BindEnv("port", config.EnvAppPort)
	viper.BindEnv("library_dir", config.EnvLibraryDir)
	viper.BindEnv("api_key", config.EnvAPIKey)
	viper.BindEnv("api_base", config.EnvAPIBase)
	viper.BindEnv("interval_minutes", config.EnvInterval)
	viper.BindEnv("sync_tag", config.EnvSyncTag)
	viper.BindEnv("sync_mode", config.EnvSyncMode)
	return nil
}

func setupLogging(cfg *config.Config) {
	consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	fileHandler := slog.NewTextHandler(&lumberjack.Logger{
		Filename:   cfg.LogFilePath(),
		MaxSize:    2, // MB
		MaxBackups: 3,
		Compress:   true,
	}, &slog.HandlerOptions{Level: slog.LevelDebug})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(consoleHandler, fileHandler)))
}
