package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calimero-network/MeroSign/internal/api"
	"github.com/calimero-network/MeroSign/internal/audit"
	"github.com/calimero-network/MeroSign/internal/blob"
	"github.com/calimero-network/MeroSign/internal/config"
	"github.com/calimero-network/MeroSign/internal/engine"
	"github.com/calimero-network/MeroSign/internal/escrow"
	"github.com/calimero-network/MeroSign/internal/model"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MeroSign HTTP service",
		Long: `Run the HTTP service.

Configuration comes from environment variables (MEROSIGN_LISTEN,
MEROSIGN_AUDIT_DB, MINIO_*). The --listen flag overrides the listen
address.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, listen, cmd)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides MEROSIGN_LISTEN)")
	return cmd
}

func runServe(opts *RootOptions, listenOverride string, cmd *cobra.Command) error {
	cfg := config.Load()
	if listenOverride != "" {
		cfg.Listen = listenOverride
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	var (
		sink  audit.Sink
		trail audit.Reader
	)
	if cfg.Audit.Path != "" {
		sq, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return &ExitError{Code: ExitCommandError, Message: "open audit database", Err: err}
		}
		defer sq.Close()
		sink, trail = sq, sq
		logger.Info("audit trail on sqlite", "path", cfg.Audit.Path)
	} else {
		mem := audit.NewMemorySink()
		sink, trail = mem, mem
		logger.Info("audit trail in memory")
	}

	var blobs blob.Store
	if cfg.Blob.Endpoint != "" {
		var err error
		blobs, err = blob.NewMinIO(blob.MinIOConfig{
			Endpoint:  cfg.Blob.Endpoint,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			Bucket:    cfg.Blob.Bucket,
			UseSSL:    cfg.Blob.UseSSL,
		})
		if err != nil {
			return &ExitError{Code: ExitCommandError, Message: "connect object storage", Err: err}
		}
		logger.Info("blob store on minio", "endpoint", cfg.Blob.Endpoint, "bucket", cfg.Blob.Bucket)
	} else {
		blobs = blob.NewMemoryStore()
		logger.Info("blob store in memory")
	}

	// Book-entry transfers: the escrow ledger is the source of truth and the
	// release itself is recorded, not forwarded to an external rail.
	transfer := escrow.TransferFunc(func(_ context.Context, recipient model.Identity, amount uint64) error {
		logger.Info("funds released", "recipient", recipient, "amount", amount)
		return nil
	})

	eng := engine.New(
		engine.WithAuditSink(sink),
		engine.WithLogger(logger),
		engine.WithTransfer(transfer),
	)
	srv, err := api.NewServer(eng, trail, blobs)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "build server", Err: err}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Listen(cfg.Listen)
	}()
	logger.Info("listening", "addr", cfg.Listen)

	select {
	case err := <-errc:
		if err != nil {
			return &ExitError{Code: ExitCommandError, Message: "serve", Err: err}
		}
		return nil
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		if err := srv.Shutdown(); err != nil {
			return &ExitError{Code: ExitCommandError, Message: "shutdown", Err: err}
		}
		return nil
	}
}
