package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/karibu-backend/internal/app"
)

var rootCmd = &cobra.Command{
	Use:           "karibu",
	Short:         "Karibu document ingestion and DNA synthesis backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Migrate(cmd.Context())
	},
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [document-id]",
	Short: "Run the ingestion pipeline for one document and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE:  runReprocess,
}

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize [subtopic-id]",
	Short: "Regenerate the values of one subtopic",
	Args:  cobra.ExactArgs(1),
	RunE:  runSynthesize,
}

var synthesizeOrg string

func init() {
	synthesizeCmd.Flags().StringVar(&synthesizeOrg, "org", "", "Organization that owns the subtopic")
	_ = synthesizeCmd.MarkFlagRequired("org")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reprocessCmd)
	rootCmd.AddCommand(synthesizeCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := app.New(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(cmd.Context())
}

func runReprocess(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", args[0], err)
	}
	a, err := app.New(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.ReprocessDocument(cmd.Context(), id)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document %s disappeared during processing", id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "document %s: %s\n", doc.ID, doc.Status)
	if doc.ErrorMessage != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", *doc.ErrorMessage)
	}
	return nil
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	subtopicID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid subtopic id %q: %w", args[0], err)
	}
	orgID, err := uuid.Parse(synthesizeOrg)
	if err != nil {
		return fmt.Errorf("invalid --org %q: %w", synthesizeOrg, err)
	}
	a, err := app.New(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.SynthesizeSubtopic(cmd.Context(), orgID, subtopicID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "synthesized %d values\n", res.ValueCount)
	for _, v := range res.Values {
		fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", v.Content)
	}
	return nil
}
