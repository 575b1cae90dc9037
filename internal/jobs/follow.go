package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/Li-Victor/Twittter/internal/apierr"
	"github.com/Li-Victor/Twittter/internal/logging"
	"github.com/Li-Victor/Twittter/internal/metrics"
	"github.com/Li-Victor/Twittter/internal/model"
	"github.com/Li-Victor/Twittter/internal/xclient"
)

// TimelineSource is the slice of *xclient.Client the follow loop needs.
type TimelineSource interface {
	GetHomeTimeline(ctx context.Context, maxID string) (xclient.Timeline, error)
}

// Handler receives each refreshed page and the tweets not delivered before.
type Handler func(tl xclient.Timeline, fresh []model.Tweet)

// Follower polls the newest page of the home timeline.
type Follower struct {
	src    TimelineSource
	handle Handler
	seen   map[string]struct{} // IDs on the last non-empty page
}

func NewFollower(src TimelineSource, handle Handler) *Follower {
	return &Follower{src: src, handle: handle, seen: map[string]struct{}{}}
}

// RefreshOnce fetches the newest page and hands it to the handler.
func (f *Follower) RefreshOnce(ctx context.Context) error {
	start := time.Now()
	metrics.FollowRuns.Inc()
	tl, err := f.src.GetHomeTimeline(ctx, "")
	if err != nil {
		metrics.FollowErrors.Inc()
		return err
	}
	var fresh []model.Tweet
	page := make(map[string]struct{}, len(tl.Tweets))
	for _, t := range tl.Tweets {
		page[t.ID] = struct{}{}
		if _, ok := f.seen[t.ID]; !ok {
			fresh = append(fresh, t)
		}
	}
	// Only the last page is remembered; an empty page keeps the previous one.
	if len(page) > 0 {
		f.seen = page
	}
	if f.handle != nil {
		f.handle(tl, fresh)
	}
	logging.Debug("follow_refresh", map[string]any{"tweets": len(tl.Tweets), "fresh": len(fresh), "from_cache": tl.FromCache})
	metrics.ObserveFollowDuration(start)
	return nil
}

// Run refreshes immediately and then every interval until ctx is cancelled.
// Refresh errors are logged and the loop keeps going, except authentication
// failures, which polling cannot fix. A rate-limited refresh waits out the
// provider's Retry-After when it is longer than interval.
func (f *Follower) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("follow interval must be positive")
	}
	for {
		wait := interval
		if err := f.RefreshOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if apierr.IsAuthentication(err) {
				return err
			}
			fields := map[string]any{"error": err.Error()}
			if d := apierr.RetryAfterOf(err); d > wait {
				wait = d
				fields["retry_after"] = d.String()
			}
			logging.Error("follow_refresh_error", fields)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			logging.Info("follow_stop", nil)
			return ctx.Err()
		case <-t.C:
		}
	}
}
