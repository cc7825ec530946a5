package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze URL",
		Short: "Suggest a crawl mode for a site and print the report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := instance.Detector.Analyze(cmd.Context(), args[0])
			if err != nil {
				return err //nolint:wrapcheck // already prefixed by Analyze
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			return nil
		},
	}
}
