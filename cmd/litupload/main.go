package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alliancegenome/litupload/internal/archive"
	"github.com/alliancegenome/litupload/internal/config"
	"github.com/alliancegenome/litupload/internal/database"
	"github.com/alliancegenome/litupload/internal/filename"
	"github.com/alliancegenome/litupload/internal/job"
	"github.com/alliancegenome/litupload/internal/referencestore"
	"github.com/alliancegenome/litupload/internal/server"
	"github.com/alliancegenome/litupload/internal/upload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "litupload: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "litupload",
		Short: "Alliance literature bulk upload toolkit",
		Long: `litupload serves the bulk archive upload API and provides offline helpers
for inspecting archives and reference filenames before submitting them.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newParseCmd(),
	)
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bulk upload HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			if err := database.EnsureSchema(ctx, pool); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			store, err := referencestore.New(cfg, pool)
			if err != nil {
				return fmt.Errorf("init reference store: %w", err)
			}
			if err := store.EnsureBucket(ctx); err != nil {
				return fmt.Errorf("ensure bucket: %w", err)
			}

			registry := job.NewRegistry()
			orchestrator := upload.New(registry, cfg.ScratchRoot)
			srv := server.New(cfg, registry, orchestrator, store.PersistFile)

			return srv.Run(ctx)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <archive>",
		Short: "Inspect an archive without uploading it",
		Long: `validate reads a local archive (PDF, tar, tgz, zip, or gz), classifies its
members into main and supplement files, and prints the report that the
/bulk-upload/validate endpoint would return.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			report := archive.Validate(data)
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("archive is not valid: %s", report.Error)
			}
			return nil
		},
	}
}

func newParseCmd() *cobra.Command {
	var mod string
	cmd := &cobra.Command{
		Use:   "parse <filename>",
		Short: "Parse a main reference filename into its metadata fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := filename.ParseMain(args[0], mod)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), meta)
		},
	}
	cmd.Flags().StringVar(&mod, "mod", "", "MOD abbreviation, e.g. WB or FB (required)")
	_ = cmd.MarkFlagRequired("mod")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
