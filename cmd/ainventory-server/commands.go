package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ainventory/ainventory-server/internal/auth"
	"github.com/ainventory/ainventory-server/internal/storage"
	"github.com/ainventory/ainventory-server/internal/tools"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := mustBuildLogger(envOrDefault(envLogLevel, "warn"), "stderr")
			defer logger.Sync() //nolint:errcheck

			reg, err := buildRegistry(storage.NewLogWriter(logger), logger)
			if err != nil {
				return err
			}
			return printTools(cmd.OutOrStdout(), reg.List())
		},
	}
}

func printTools(w io.Writer, list []tools.Tool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tRISK\tDESCRIPTION")
	for _, t := range list {
		summary, _, _ := strings.Cut(t.Description, "\n")
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.RiskTier, summary)
	}
	return tw.Flush()
}

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool locally and print its JSON result",
		Args:  cobra.ExactArgs(1),
		RunE:  runCall,
	}
	cmd.Flags().String("args", "{}", "Tool arguments as a JSON object")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	rawArgs, _ := cmd.Flags().GetString("args")
	toolArgs, err := parseArgs(rawArgs)
	if err != nil {
		return err
	}

	logger := mustBuildLogger(envOrDefault(envLogLevel, "warn"), "stderr")
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	writer := openEventWriter(ctx, logger)
	defer writer.Close()

	reg, err := buildRegistry(writer, logger)
	if err != nil {
		return err
	}

	result, err := reg.Call(ctx, args[0], toolArgs, tools.SourceCLI)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// parseArgs decodes a JSON object, keeping numbers exact.
func parseArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return out, nil
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys stored in Postgres",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API client and print its key once",
		Args:  cobra.NoArgs,
		RunE:  runKeysCreate,
	}
	create.Flags().String("name", "", "Client name")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(create)
	return cmd
}

func runKeysCreate(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	dsn := os.Getenv(envPostgresDSN)
	if dsn == "" {
		return errors.New("POSTGRES_DSN is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := openPostgres(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	store := auth.NewSQLClientStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	id := uuid.New().String()
	key, err := store.CreateClient(ctx, id, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "client_id: %s\napi_key:   %s\n", id, key)
	return nil
}
