package overdue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Viktor-Beniukh/library-service-api/model"
	"github.com/Viktor-Beniukh/library-service-api/service/fee"
	"github.com/Viktor-Beniukh/library-service-api/service/notify"
)

type Repo interface {
	ListOverdue(ctx context.Context, today model.Date) ([]model.BorrowingDetail, error)
}

// Scanner finds open borrowings past their expected return date and reports
// them to staff as one digest.
type Scanner interface {
	ListOverdue(ctx context.Context, now time.Time) ([]model.BorrowingDetail, error)
	Scan(ctx context.Context, now time.Time) (*notify.Event, error)
	// Run scans every interval until ctx is done.
	Run(ctx context.Context, interval time.Duration)
}

type scanner struct {
	r      Repo
	policy fee.Policy
	sink   notify.Sink
	log    *slog.Logger
}

func New(r Repo, policy fee.Policy, sink notify.Sink, log *slog.Logger) Scanner {
	if sink == nil {
		sink = notify.Discard
	}
	return &scanner{r: r, policy: policy, sink: sink, log: log}
}

// ListOverdue compares calendar dates: a borrowing due today is not overdue.
func (s *scanner) ListOverdue(ctx context.Context, now time.Time) ([]model.BorrowingDetail, error) {
	return s.r.ListOverdue(ctx, model.DateOf(now))
}

func (s *scanner) Scan(ctx context.Context, now time.Time) (*notify.Event, error) {
	rows, err := s.ListOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list overdue borrowings: %w", err)
	}

	today := model.DateOf(now)
	entries := make([]notify.OverdueEntry, 0, len(rows))
	for _, d := range rows {
		en, err := s.entry(d, today)
		if err != nil {
			// still overdue; only the amounts are unknown
			s.log.WarnContext(ctx, "overdue entry left unpriced", "borrowing_id", d.ID, "err", err)
			en = notify.OverdueEntry{
				BorrowingID: d.ID,
				Borrower:    d.Borrower.FullName(),
				BookTitle:   d.Book.Title,
				DueDate:     d.ExpectedReturnDate,
				OverdueDays: d.ExpectedReturnDate.DaysUntil(today),
				Unpriced:    true,
			}
		}
		entries = append(entries, en)
	}

	ev := notify.OverdueDigest(entries, now)
	if err := s.sink.Notify(ctx, ev); err != nil {
		s.log.WarnContext(ctx, "overdue digest notification failed", "entries", len(entries), "err", err)
	}
	return &ev, nil
}

func (s *scanner) entry(d model.BorrowingDetail, today model.Date) (notify.OverdueEntry, error) {
	planned, err := fee.Planned(d.BorrowDate, d.ExpectedReturnDate, d.Book.DailyFee)
	if err != nil {
		return notify.OverdueEntry{}, err
	}
	accrued, err := s.policy.Compute(d.BorrowDate, d.ExpectedReturnDate, today, d.Book.DailyFee)
	if err != nil {
		return notify.OverdueEntry{}, err
	}
	return notify.OverdueEntry{
		BorrowingID:   d.ID,
		Borrower:      d.Borrower.FullName(),
		BookTitle:     d.Book.Title,
		DueDate:       d.ExpectedReturnDate,
		OverdueDays:   d.ExpectedReturnDate.DaysUntil(today),
		PlannedAmount: planned,
		AccruedAmount: accrued,
	}, nil
}

func (s *scanner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	s.log.Info("overdue scanner started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("overdue scanner stopped")
			return
		case now := <-t.C:
			ev, err := s.Scan(ctx, now)
			if err != nil {
				s.log.Error("overdue scan failed", "err", err)
				continue
			}
			s.log.Info("overdue scan done", "kind", ev.Kind, "entries", len(ev.Entries))
		}
	}
}
