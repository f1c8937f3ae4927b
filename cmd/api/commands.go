package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markdave123-py/contexta-ingest/internal/app"
	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/logger"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "contexta",
		Short: "Ingest stored documents into the document-chat vector index",
		Long: `contexta turns stored documents into page-attributed, embedded segments
and upserts them into a per-document namespace of the vector index.
Without a subcommand it runs the HTTP service.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP service and the background ingestion queue",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "ingest <file-key>",
			Short: "Ingest one stored document and print its first page's segments",
			Args:  cobra.ExactArgs(1),
			RunE:  runIngest,
		},
		&cobra.Command{
			Use:   "upload <path>",
			Short: "Store a local file and ingest it",
			Args:  cobra.ExactArgs(1),
			RunE:  runUpload,
		},
		&cobra.Command{
			Use:   "status <file-key>",
			Short: "Show the ingestion status of a stored document",
			Args:  cobra.ExactArgs(1),
			RunE:  runStatus,
		},
	)
	return root
}

// bootstrap loads the configuration and builds the application.
func bootstrap(ctx context.Context) (*app.App, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, fmt.Errorf("startup failed: %w", err)
	}
	return application, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	application, log, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer application.Close()

	application.Queue.Start(ctx)
	log.Info("contexta is running", zap.String("port", application.Config.Port))

	if err := application.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("shutting down")
	return nil
}

type ingestOutput struct {
	FileKey     string           `json:"file_key"`
	Namespace   string           `json:"namespace"`
	Count       int              `json:"count"`
	VectorCount int              `json:"vector_count"`
	Segments    []models.Segment `json:"segments"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	application, log, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer log.Sync()
	defer application.Close()

	return ingestAndPrint(cmd, application, args[0])
}

func runUpload(cmd *cobra.Command, args []string) error {
	application, log, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer log.Sync()
	defer application.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	key, err := application.Objects.Put(cmd.Context(), filepath.Base(args[0]), f, "")
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	cmd.PrintErrf("stored as %s (%s)\n", key, application.Objects.URL(key))
	return ingestAndPrint(cmd, application, key)
}

func ingestAndPrint(cmd *cobra.Command, application *app.App, key string) error {
	segments, err := application.Ingestor.Ingest(cmd.Context(), key)
	if err != nil {
		var ie *core.IngestionError
		if errors.As(err, &ie) && ie.PartiallyWritten() {
			cmd.PrintErrf("%d vectors were written before the failure; re-run to complete\n", ie.Committed)
		}
		return err
	}

	ns := ingestion_engine.DeriveNamespace(key)
	stored, err := application.Store.CountVectors(cmd.Context(), ns)
	if err != nil {
		return fmt.Errorf("count vectors: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(ingestOutput{
		FileKey:     key,
		Namespace:   ns,
		Count:       len(segments),
		VectorCount: stored,
		Segments:    segments,
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	application, log, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer log.Sync()
	defer application.Close()

	st, err := application.Docs.Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
