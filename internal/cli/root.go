package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/asad/blobmirror/internal/config"
	"github.com/asad/blobmirror/internal/core"
	"github.com/asad/blobmirror/internal/httpx"
	"github.com/asad/blobmirror/internal/logging"
	"github.com/asad/blobmirror/internal/metrics"
	"github.com/asad/blobmirror/internal/mirror"
	"github.com/asad/blobmirror/internal/services/blob"
	"github.com/asad/blobmirror/internal/storage"
	"github.com/asad/blobmirror/internal/storage/azure"
	"github.com/asad/blobmirror/internal/storage/local"
)

var (
	// Version is set at build time via ldflags.
	// Example: go build -ldflags "-X github.com/asad/blobmirror/internal/cli.Version=1.0.0"
	Version = "dev"
)

// options holds the raw flag values. Only flags the user set override the loaded config.
type options struct {
	configPath string
	values     config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{})
}

func newRootCmd(o *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blobmirror",
		Short: "Mirror Azure Blob Storage containers to a local directory",
		Long: `Blobmirror enumerates the containers and blobs of an Azure Storage account and
copies them into a local directory tree, one directory per container, keeping
each blob's last-modified time.

Containers and blobs can be filtered by regular expression and by an inclusive
last-modified date range.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "YAML config file")
	pf.StringVar(&o.values.Account, "account", "", "storage account name")
	pf.StringVar(&o.values.Key, "key", "", "storage account access key")
	pf.StringVar(&o.values.Endpoint, "endpoint", "", "blob service URL override (e.g. Azurite)")
	pf.StringVar(&o.values.SourceDir, "source-dir", "", "read from a local directory tree instead of Azure")
	pf.StringVarP(&o.values.Output, "output", "o", "", "directory to write the mirror to (default \".\")")
	pf.StringVar(&o.values.ContainerPattern, "container-pattern", "", "regular expression container names must match")
	pf.StringVar(&o.values.BlobPattern, "blob-pattern", "", "regular expression blob names must match")
	pf.StringVar(&o.values.StartDate, "start-date", "", "earliest last-modified time, inclusive (RFC 3339 or YYYY-MM-DD)")
	pf.StringVar(&o.values.EndDate, "end-date", "", "latest last-modified time, inclusive (RFC 3339 or YYYY-MM-DD)")
	pf.BoolVar(&o.values.IncludeSnapshots, "include-snapshots", false, "also mirror blob snapshots")
	pf.IntVar(&o.values.PageSize, "page-size", 0, "listing page size, 1-5000 (default: service default)")
	pf.StringVar(&o.values.MetricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")
	pf.StringVar(&o.values.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&o.values.LogFormat, "log-format", "", "log format: console or json")

	mirrorCmd := &cobra.Command{
		Use:   "mirror",
		Short: "Mirror the account to the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(cmd, o)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print what mirror would write, without downloading",
		Long: `List every blob that passes the filters, one per line:

  container<TAB>blob<TAB>snapshot<TAB>local path`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, o)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Browse a mirror directory over HTTP",
		Long: `Serve a read-only HTTP view of a mirror directory:

  GET /health
  GET /mirror/                          list containers
  GET /mirror/{container}?marker=&maxresults=   list blobs
  GET /mirror/{container}/{blob}        download a blob`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, o)
		},
	}
	serveCmd.Flags().StringVar(&o.values.Output, "dir", "", "mirror directory to serve (default \".\")")
	serveCmd.Flags().IntVar(&o.values.Port, "port", 0, "port to listen on (default 8080)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blobmirror version %s\n", Version)
		},
	}

	rootCmd.AddCommand(mirrorCmd, listCmd, serveCmd, versionCmd)
	return rootCmd
}

// Execute is the entry point for the CLI. It should be called from main.go.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration and pattern errors and 1 for everything else.
func exitCode(err error) int {
	if storage.IsKind(err, storage.KindInvalidConfig) || storage.IsKind(err, storage.KindInvalidPattern) {
		return 2
	}
	return 1
}

// load builds the config: defaults, then the config file, then the environment, then set flags.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	v := &o.values
	set("account", func() { cfg.Account = v.Account })
	set("key", func() { cfg.Key = v.Key })
	set("endpoint", func() { cfg.Endpoint = v.Endpoint })
	set("source-dir", func() { cfg.SourceDir = v.SourceDir })
	set("output", func() { cfg.Output = v.Output })
	set("dir", func() { cfg.Output = v.Output })
	set("container-pattern", func() { cfg.ContainerPattern = v.ContainerPattern })
	set("blob-pattern", func() { cfg.BlobPattern = v.BlobPattern })
	set("start-date", func() { cfg.StartDate = v.StartDate })
	set("end-date", func() { cfg.EndDate = v.EndDate })
	set("include-snapshots", func() { cfg.IncludeSnapshots = v.IncludeSnapshots })
	set("page-size", func() { cfg.PageSize = v.PageSize })
	set("metrics-file", func() { cfg.MetricsFile = v.MetricsFile })
	set("port", func() { cfg.Port = v.Port })
	set("log-level", func() { cfg.LogLevel = v.LogLevel })
	set("log-format", func() { cfg.LogFormat = v.LogFormat })
	return cfg, nil
}

// run is what mirror and list share: validated config, logger and backend.
type run struct {
	cfg     *config.Config
	logger  logging.Logger
	account storage.Account
	opts    mirror.Options
}

// setup loads and validates the config and builds the logger and storage backend.
func setup(cmd *cobra.Command, o *options) (*run, error) {
	cfg, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	containers, blobs, dates, err := cfg.Filters()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = logger.With(logging.String("run_id", uuid.NewString()))

	account, location, err := openAccount(cfg)
	if err != nil {
		return nil, err
	}

	r := &run{
		cfg:     cfg,
		logger:  logger,
		account: account,
		opts: mirror.Options{
			Containers:       containers,
			Blobs:            blobs,
			Dates:            dates,
			IncludeSnapshots: cfg.IncludeSnapshots,
			PageSize:         int32(cfg.PageSize),
		},
	}

	fields := []logging.Field{
		logging.String("version", Version),
		logging.String("command", cmd.Name()),
		logging.String("source", location),
		logging.String("output", cfg.Output),
	}
	logger.Info("starting blobmirror", append(fields, filterFields(r.opts)...)...)
	return r, nil
}

// filterFields describes the active filters. Unset filters are left out.
func filterFields(opts mirror.Options) []logging.Field {
	var fields []logging.Field
	if opts.Containers.IsSet() {
		fields = append(fields, logging.String("container_pattern", opts.Containers.String()))
	}
	if opts.Blobs.IsSet() {
		fields = append(fields, logging.String("blob_pattern", opts.Blobs.String()))
	}
	if opts.Dates.IsSet() {
		fields = append(fields, logging.String("dates", opts.Dates.String()))
	}
	if opts.IncludeSnapshots {
		fields = append(fields, logging.Bool("include_snapshots", true))
	}
	return fields
}

// newMirror creates the pipeline over the local filesystem, logging every event and forwarding it to obs.
func (r *run) newMirror(obs ...mirror.Observer) *mirror.Mirror {
	observers := append(mirror.Observers{mirror.NewLogObserver(r.logger)}, obs...)
	return mirror.New(r.account, afero.NewOsFs(), r.cfg.Output, r.opts, observers)
}

// openAccount creates the storage backend once per run and reports where it reads from.
func openAccount(cfg *config.Config) (storage.Account, string, error) {
	if cfg.SourceDir != "" {
		store, err := local.NewStore(afero.NewOsFs(), cfg.SourceDir)
		if err != nil {
			return nil, "", err
		}
		return store, cfg.SourceDir, nil
	}
	acc, err := azure.NewAccount(azure.Config{
		AccountName: cfg.Account,
		AccountKey:  cfg.Key,
		Endpoint:    cfg.Endpoint,
		PageSize:    int32(cfg.PageSize),
	})
	if err != nil {
		return nil, "", err
	}
	return acc, acc.URL(), nil
}

func source(cfg *config.Config) string {
	if cfg.SourceDir != "" {
		return cfg.SourceDir
	}
	return cfg.Account
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// runMirror runs the pipeline and writes the metrics file whether or not the run succeeded.
func runMirror(cmd *cobra.Command, o *options) error {
	r, err := setup(cmd, o)
	if err != nil {
		return err
	}
	defer r.logger.Sync()

	ctx, stop := signalContext(cmd)
	defer stop()

	m := metrics.New(source(r.cfg))
	_, runErr := r.newMirror(m).Run(ctx)

	if r.cfg.MetricsFile != "" {
		if err := m.WriteFile(r.cfg.MetricsFile); err != nil {
			r.logger.Error("failed to write metrics file",
				logging.String("path", r.cfg.MetricsFile),
				logging.ErrorField(err),
			)
			if runErr == nil {
				runErr = err
			}
		}
	}
	return runErr
}

// runList prints the plan as tab-separated lines on stdout.
func runList(cmd *cobra.Command, o *options) error {
	r, err := setup(cmd, o)
	if err != nil {
		return err
	}
	defer r.logger.Sync()

	ctx, stop := signalContext(cmd)
	defer stop()

	items, err := r.newMirror().Plan(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, it := range items {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", it.Blob.Container, it.Blob.Name, it.Blob.Snapshot, it.Path)
	}
	return nil
}

// runServe starts the HTTP browser and stops it on SIGINT/SIGTERM.
func runServe(cmd *cobra.Command, o *options) error {
	cfg, err := o.load(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	store, err := local.NewStore(afero.NewOsFs(), cfg.Output)
	if err != nil {
		return err
	}

	registry := core.NewRegistry(blob.NewBlobService(store, logger))
	router := httpx.NewEdgeRouter(registry, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting blobmirror server",
		logging.String("version", Version),
		logging.String("address", addr),
		logging.String("dir", cfg.Output),
		logging.Int("services", len(registry.Services())),
	)

	ctx, stop := signalContext(cmd)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
