package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/curation-tracker/internal/tracking"
)

// newStatusCmd creates the 'status' subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [kind...]",
		Short: "Print the persisted tracking state as JSON",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	kinds := args
	if len(kinds) == 0 {
		kinds = appInstance.Kinds()
	}
	statuses := make([]tracking.Status, 0, len(kinds))
	for _, kind := range kinds {
		tracker, err := appInstance.Tracker(kind)
		if err != nil {
			return err
		}
		st, err := tracker.Status(cmd.Context())
		if err != nil {
			return err
		}
		statuses = append(statuses, st)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"trackers": statuses})
}
