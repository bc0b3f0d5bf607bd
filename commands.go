package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/krshsl/mensetsu/backend/models"
	"github.com/krshsl/mensetsu/backend/normalizer"
	"github.com/krshsl/mensetsu/backend/repository"
	svc "github.com/krshsl/mensetsu/backend/services"
	"github.com/spf13/cobra"
)

// newRootCmd creates the root command for the backend binary.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mensetsu",
		Short:         "Japanese interview practice backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newNormalizeCmd())
	rootCmd.AddCommand(newSchemaCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			store, err := repository.Open(cmd.Context(), config.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			server := svc.NewServer(config, store)
			if err := server.InitializeServices(); err != nil {
				return err
			}
			return server.Start()
		},
	}
}

// migrator is implemented by stores with a schema to upgrade.
type migrator interface {
	Migrate() error
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the relational schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			store, err := repository.Open(context.Background(), config.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			m, ok := store.(migrator)
			if !ok {
				cmd.Printf("Store %s has no schema to migrate\n", store.Name())
				return nil
			}
			if err := m.Migrate(); err != nil {
				return err
			}
			cmd.Printf("Migrated %s store\n", store.Name())
			return nil
		},
	}
}

// normalizeInput is a stored record in any shape the normalizer accepts.
type normalizeInput struct {
	Transcript    any `json:"transcript"`
	SummaryReport any `json:"summary_report"`
}

type normalizeOutput struct {
	Transcript    []models.Turn   `json:"transcript"`
	SummaryReport *models.Summary `json:"summary_report"`
}

func newNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Print the canonical form of a stored interview record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				r = f
			}
			out, err := normalizeRecord(r)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(out)
		},
	}
	return cmd
}

func normalizeRecord(r io.Reader) (*normalizeOutput, error) {
	var in normalizeInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", models.ErrValidation)
		}
		return nil, fmt.Errorf("%w: invalid JSON: %v", models.ErrValidation, err)
	}
	return &normalizeOutput{
		Transcript:    normalizer.Transcript(in.Transcript),
		SummaryReport: normalizer.Summary(in.SummaryReport),
	}, nil
}

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the canonical interview record",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := interviewSchema()
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("failed to write schema: %w", err)
			}
			slog.Info("Schema written", "path", output)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write the schema to a file instead of stdout")
	return cmd
}

func interviewSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
	}
	schema := r.Reflect(&models.Interview{})
	schema.Title = "Interview"
	schema.Description = "Canonical interview record as returned by every store."

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
