package notify

import (
	"context"
	"log/slog"
)

type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, e Event) error {
	s.Log.InfoContext(ctx, "notification",
		"kind", e.Kind,
		"borrower", e.Borrower,
		"amount", e.Amount.StringFixed(2),
		"entries", len(e.Entries),
	)
	return nil
}
