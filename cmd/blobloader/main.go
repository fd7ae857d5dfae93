// Package main provides the entry point for the blobloader command.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/blobloader/internal/app"
	"github.com/jobrunner/blobloader/internal/config"
	"github.com/jobrunner/blobloader/internal/domain"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// flushTimeout bounds the final metrics push and database disconnect.
const flushTimeout = 10 * time.Second

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	load := func(cmd *cobra.Command, _ []string) error {
		return runLoad(cmd, v, cfgFile)
	}

	rootCmd := &cobra.Command{
		Use:   "blobloader",
		Short: "Load tabular blob files into a MongoDB collection",
		Long: `blobloader resolves a logical path of the form
account/container/pattern against blob storage, downloads the matching
files into a local mirror (skipping files already present with the right
size), and inserts every CSV row as one document into MongoDB.

Storage keys for Azure accounts are read from Azure Key Vault using the
CLIENT_ID, SECRET_KEY, TENANT_ID and AZURE_KEYVAULT_ACCOUNT variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          load,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().String("files", "", "logical path account/container/pattern")
	rootCmd.PersistentFlags().String("storage-type", "azure", "storage type (azure, s3, local)")
	rootCmd.PersistentFlags().String("storage-path", "./data", "local storage root")

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Resolve, download and load files (default)",
		RunE:  load,
	}
	for _, cmd := range []*cobra.Command{rootCmd, loadCmd} {
		addLoadFlags(cmd)
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the files a logical path resolves to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResolve(cmd, v, cfgFile)
		},
	}

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Count documents matching a filter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCount(cmd, v, cfgFile)
		},
	}
	findCmd := &cobra.Command{
		Use:   "find",
		Short: "Print documents matching a filter as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFind(cmd, v, cfgFile)
		},
	}
	for _, cmd := range []*cobra.Command{countCmd, findCmd} {
		addMongoFlags(cmd)
		cmd.Flags().String("filter", "", "MongoDB Extended JSON filter")
	}
	findCmd.Flags().Int64("limit", 20, "maximum number of documents (0 for all)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "blobloader %s\n", version)
			_, _ = fmt.Fprintf(out, "  Commit:     %s\n", commit)
			_, _ = fmt.Fprintf(out, "  Build Date: %s\n", buildDate)
		},
	}

	rootCmd.AddCommand(loadCmd, resolveCmd, countCmd, findCmd, versionCmd)
	return rootCmd
}

func addLoadFlags(cmd *cobra.Command) {
	addMongoFlags(cmd)
	cmd.Flags().String("download_dir", "", "local directory mirroring downloaded blobs")
	cmd.Flags().Bool("dry-run", false, "resolve and print files without downloading or loading")
	cmd.Flags().Int("workers", 1, "concurrent downloads")
	cmd.Flags().String("on-size-mismatch", "fail", "action for a local file with the wrong size (fail, redownload)")
}

func addMongoFlags(cmd *cobra.Command) {
	cmd.Flags().String("mongo_ip", "", "MongoDB host")
	cmd.Flags().Int("mongo_port", 27017, "MongoDB port")
	cmd.Flags().String("mongo_username", "", "MongoDB user")
	cmd.Flags().String("mongo_password", "", "MongoDB password")
	cmd.Flags().String("mongo_db", "", "MongoDB database")
	cmd.Flags().String("mongo_collection", "", "MongoDB collection")
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":        "logging.level",
	"log-format":       "logging.format",
	"files":            "files",
	"storage-type":     "storage.type",
	"storage-path":     "storage.local_path",
	"download_dir":     "download_dir",
	"dry-run":          "dry_run",
	"workers":          "fetch.workers",
	"on-size-mismatch": "fetch.on_size_mismatch",
	"mongo_ip":         "mongo.ip",
	"mongo_port":       "mongo.port",
	"mongo_username":   "mongo.username",
	"mongo_password":   "mongo.password",
	"mongo_db":         "mongo.db",
	"mongo_collection": "mongo.collection",
}

// loadConfig binds the flags of the running command and loads the configuration.
func loadConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) (*config.Config, *slog.Logger, error) {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func closeApp(a *app.App, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func runLoad(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	cfg, logger, err := loadConfig(cmd, v, cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.ValidateLoad(); err != nil {
		return err
	}

	logger.Info("starting blobloader",
		"version", version,
		"files", cfg.Files,
		"storage_type", cfg.Storage.Type,
		"download_dir", cfg.DownloadDir,
		"dry_run", cfg.DryRun,
	)

	ctx, cancel := signalContext()
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.ModeLoad)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer closeApp(a, logger)

	result, err := a.Pipeline.Run(ctx, cfg.Files)
	if err != nil {
		return err
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
}

func runResolve(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	cfg, logger, err := loadConfig(cmd, v, cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Files == "" {
		return &domain.ConfigError{Field: "files", Message: "a logical path is required (--files)"}
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.ModeResolve)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer closeApp(a, logger)

	refs, err := a.Pipeline.Resolve(ctx, cfg.Files)
	if err != nil {
		return err
	}
	return printRefs(cmd.OutOrStdout(), refs)
}

func runCount(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	a, cancel, err := newQueryApp(cmd, v, cfgFile)
	if err != nil {
		return err
	}
	defer cancel()
	defer closeApp(a, a.Logger)

	filter, _ := cmd.Flags().GetString("filter")
	n, err := a.QueryService.Count(cmd.Context(), filter)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
	return err
}

func runFind(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	a, cancel, err := newQueryApp(cmd, v, cfgFile)
	if err != nil {
		return err
	}
	defer cancel()
	defer closeApp(a, a.Logger)

	filter, _ := cmd.Flags().GetString("filter")
	limit, _ := cmd.Flags().GetInt64("limit")
	docs, err := a.QueryService.Find(cmd.Context(), filter, limit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, doc := range docs {
		if err := enc.Encode(doc.Map()); err != nil {
			return err
		}
	}
	return nil
}

func newQueryApp(cmd *cobra.Command, v *viper.Viper, cfgFile string) (*app.App, context.CancelFunc, error) {
	cfg, logger, err := loadConfig(cmd, v, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Mongo.Validate(); err != nil {
		return nil, nil, err
	}

	ctx, cancel := signalContext()
	cmd.SetContext(ctx)

	a, err := app.New(ctx, cfg, logger, app.ModeQuery)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, cancel, nil
}

func printRefs(w io.Writer, refs []domain.FileRef) error {
	for _, ref := range refs {
		if _, err := fmt.Fprintln(w, ref.String()); err != nil {
			return err
		}
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(time.Now().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
