package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/JakeFAU/curation-tracker/internal/progress"
)

// ConsoleSink prints user-visible notifications, one line per event. It
// stands in for toast rendering in the CLI.
type ConsoleSink struct {
	mu           sync.Mutex
	w            io.Writer
	showProgress bool
}

// NewConsoleSink writes to w (stdout when nil). Progress ticks are printed
// only when showProgress is set.
func NewConsoleSink(w io.Writer, showProgress bool) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w, showProgress: showProgress}
}

// Consume prints every notification in the batch.
func (s *ConsoleSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if !evt.Notify() {
			continue
		}
		if evt.Stage == progress.StageProgress && !s.showProgress {
			continue
		}
		if _, err := fmt.Fprintf(s.w, "[%s] %s: %s\n", evt.Severity, evt.Kind, evt.Message); err != nil {
			return fmt.Errorf("write notification: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *ConsoleSink) Close(context.Context) error {
	return nil
}
