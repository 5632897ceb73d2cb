package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newResumeCmd creates the 'resume' subcommand.
func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [kind...]",
		Short: "Continue tracking jobs left over from a previous run",
		Long: `Reads the persisted tracking state for the given kinds (all configured kinds
when none are named) and keeps polling any job that is still fresh. Stale or
unreadable state is discarded silently.`,
		RunE: runResume,
	}
}

func runResume(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	sessions, resumeErr := appInstance.Resume(cmd.Context(), args...)
	if len(sessions) == 0 {
		if resumeErr != nil {
			return resumeErr
		}
		fmt.Fprintln(cmd.OutOrStdout(), "no running jobs")
		return nil
	}

	errs := []error{resumeErr}
	for _, s := range sessions {
		errs = append(errs, waitSession(cmd.Context(), cmd.OutOrStdout(), s))
	}
	return errors.Join(errs...)
}
