package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"bulkjobs/models"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		file       string
		collection string
		requestor  string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a bulk request from a JSON file and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read request file: %w", err)
			}
			var req models.BulkRequest
			if err := models.DecodeJSON(bytes.NewReader(raw), &req); err != nil {
				return fmt.Errorf("failed to parse request file %s: %w", file, err)
			}
			if collection != "" {
				req.Collection = collection
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.processor.Process(cmd.Context(), req, requestor)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the bulk request JSON")
	cmd.Flags().StringVar(&collection, "collection", "", "Logical collection (overrides the file)")
	cmd.Flags().StringVar(&requestor, "requestor", "cli", "Identity recorded as requestedBy")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
