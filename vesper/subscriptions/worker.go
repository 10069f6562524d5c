package subscriptions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories"
	"github.com/vesperbot/vesper/vesper/errs"
)

const (
	// SweepInterval is how often the polling loop runs.
	SweepInterval = 180 * time.Second

	// DefaultThrottle is the minimum interval between polls of any
	// single subscription, independent of the sweep period.
	DefaultThrottle = 900 * time.Second

	sweepConcurrency = 10
)

// Worker polls all registered subscriptions and posts new content. Per-
// subscription failures are logged and swallowed so one dead source
// cannot stall the rest.
type Worker struct {
	repo    repositories.SubscriptionRepository
	sources map[string]Source
	poster  *Poster

	sem      *semaphore.Weighted
	throttle time.Duration

	checked sync.Map // subscription id -> last checked time.Time
	now     func() time.Time
}

func NewWorker(
	repo repositories.SubscriptionRepository,
	sources map[string]Source,
	poster *Poster,
) *Worker {
	return &Worker{
		repo:     repo,
		sources:  sources,
		poster:   poster,
		sem:      semaphore.NewWeighted(sweepConcurrency),
		throttle: DefaultThrottle,
		now:      time.Now,
	}
}

// SetNow overrides the clock for tests.
func (w *Worker) SetNow(now func() time.Time) { w.now = now }

// SetThrottle overrides the per-subscription minimum poll interval.
func (w *Worker) SetThrottle(d time.Duration) { w.throttle = d }

// Sweep polls every subscription that is past its throttle, at most
// ten at a time.
func (w *Worker) Sweep(ctx context.Context) {
	subs, err := w.repo.List(ctx)
	if err != nil {
		slog.Error("Subscription sweep failed to list",
			slog.String("type", "feed"),
			slog.Any("error", err))
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		if !w.claim(sub.ID) {
			continue
		}
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func(sub *models.Subscription) {
			defer wg.Done()
			defer w.sem.Release(1)
			if err := w.poll(ctx, sub); err != nil {
				slog.Warn("Subscription poll failed",
					slog.String("type", "feed"),
					slog.String("id", sub.ID),
					slog.Any("error", err))
			}
		}(sub)
	}
	wg.Wait()
}

// claim marks the subscription checked now and reports whether it was
// past the throttle. The timestamp moves before the fetch so an
// overlapping sweep cannot double-poll.
func (w *Worker) claim(id string) bool {
	now := w.now()
	if v, ok := w.checked.Load(id); ok {
		if now.Sub(v.(time.Time)) < w.throttle {
			return false
		}
	}
	w.checked.Store(id, now)
	return true
}

func (w *Worker) poll(ctx context.Context, sub *models.Subscription) error {
	source, ok := w.sources[sub.Platform]
	if !ok {
		return errs.Newf(errs.Internal, "no source for platform %q", sub.Platform)
	}

	cachedPlaylist := sub.UploadsPlaylist
	item, err := source.Latest(ctx, sub)
	if err != nil {
		return err
	}
	if sub.UploadsPlaylist != cachedPlaylist {
		if err := w.repo.SetUploadsPlaylist(ctx, sub.ID, sub.UploadsPlaylist); err != nil {
			slog.Warn("Failed to cache uploads playlist",
				slog.String("type", "feed"),
				slog.String("id", sub.ID),
				slog.Any("error", err))
		}
	}
	if item == nil || item.ID == "" || item.ID == sub.LastSeen {
		return nil
	}

	if err := w.poster.Post(ctx, sub, item); err != nil {
		return err
	}
	if err := w.repo.SetLastSeen(ctx, sub.ID, item.ID); err != nil {
		return errs.Wrap(errs.Internal, "persist last seen", err)
	}
	slog.Info("Subscription posted",
		slog.String("type", "feed"),
		slog.String("id", sub.ID),
		slog.String("content_id", item.ID))
	return nil
}

// ForceCheck polls one subscription immediately, bypassing the
// throttle.
func (w *Worker) ForceCheck(ctx context.Context, id string) error {
	sub, err := w.repo.Get(ctx, id)
	if err != nil {
		return errs.Wrap(errs.Internal, "look up subscription", err)
	}
	if sub == nil {
		return errs.Newf(errs.NotFound, "no subscription %q", id)
	}
	w.checked.Store(id, w.now())
	return w.poll(ctx, sub)
}
