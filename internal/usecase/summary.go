package usecase

import (
	"fmt"
	"log/slog"
)

// Summary counts per-item outcomes of one stage run.
type Summary struct {
	Stage     string
	Processed int
	Accepted  int
	Flagged   int
	Failed    int
	Skipped   int
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: processed=%d accepted=%d flagged=%d failed=%d skipped=%d",
		s.Stage, s.Processed, s.Accepted, s.Flagged, s.Failed, s.Skipped)
}

// Log writes the summary as one structured line.
func (s Summary) Log(logger *slog.Logger) {
	logger.Info("stage finished",
		"stage", s.Stage,
		"processed", s.Processed,
		"accepted", s.Accepted,
		"flagged", s.Flagged,
		"failed", s.Failed,
		"skipped", s.Skipped,
	)
}
