package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/tracking"
)

const defaultAnalyzeLimit = 10

// newAnalyzeCmd creates the 'analyze' subcommand.
func newAnalyzeCmd() *cobra.Command {
	var (
		limit  int
		ids    []int64
		detach bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <kind>",
		Short: "Submit an analysis job and track it",
		Long: `Submits an analysis job for the given resource kind (products, posts) and
polls the backend until the analyzed counter reaches the target, the poll
budget runs out, or the command is interrupted. An interrupted job can be
picked up again with "curator resume".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := limit
			if !cmd.Flags().Changed("limit") && len(ids) > 0 {
				target = len(ids)
			}
			return runAnalyze(cmd, args[0], target, ids, detach)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultAnalyzeLimit, "number of items to analyze (defaults to the number of --id values when set)")
	cmd.Flags().Int64SliceVar(&ids, "id", nil, "restrict the job to these item ids (repeatable)")
	cmd.Flags().BoolVar(&detach, "detach", false, "submit and persist the job, then exit without waiting")
	return cmd
}

func runAnalyze(cmd *cobra.Command, kind string, target int, ids []int64, detach bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	tracker, err := appInstance.Tracker(kind)
	if err != nil {
		return err
	}
	submitter, err := appInstance.Submitter(kind, ids)
	if err != nil {
		return err
	}

	session, err := tracker.StartWith(cmd.Context(), target, submitter)
	if err != nil {
		return err
	}
	snap := session.Snapshot()
	appInstance.Logger().Info("analysis tracking started",
		zap.String("kind", kind),
		zap.String("session_id", snap.ID.String()),
		zap.Int("target", snap.Target),
	)
	if detach {
		fmt.Fprintf(cmd.OutOrStdout(), "submitted %s analysis of %d items; run \"curator resume %s\" to follow it\n", kind, snap.Target, kind)
		return nil
	}
	return waitSession(cmd.Context(), cmd.OutOrStdout(), session)
}

// waitSession blocks until s is terminal. Interruption is not an error: the
// persisted descriptor lets a later resume continue the job.
func waitSession(ctx context.Context, out io.Writer, s *tracking.Session) error {
	err := s.Wait(ctx)
	switch {
	case err == nil, errors.Is(err, tracking.ErrSessionCancelled):
		return nil
	case ctx.Err() != nil:
		fmt.Fprintf(out, "interrupted; run \"curator resume %s\" to continue tracking\n", s.Snapshot().Kind)
		return nil
	default:
		return err
	}
}
