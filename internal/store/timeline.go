package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Li-Victor/Twittter/internal/logging"
	"github.com/Li-Victor/Twittter/internal/model"
)

// TimelineKey is the single slot holding the last home timeline page.
const TimelineKey = "hometimeline_tweets"

// TimelineCache keeps the most recent raw home timeline page. It is advisory:
// a snapshot that is missing or unreadable is reported as absent.
type TimelineCache struct {
	kv  KV
	now func() time.Time
}

func NewTimelineCache(kv KV) *TimelineCache {
	return &TimelineCache{kv: kv, now: time.Now}
}

// Write replaces the snapshot with tweets, stamped with the current time.
func (c *TimelineCache) Write(ctx context.Context, tweets []json.RawMessage) error {
	if tweets == nil {
		tweets = []json.RawMessage{}
	}
	snap := model.TimelineSnapshot{Tweets: tweets, CapturedAt: c.now().UTC()}
	data, err := json.Marshal(snap)
	if err != nil {
		return &Error{Operation: "save", Key: TimelineKey, Cause: err}
	}
	if err := c.kv.Set(ctx, TimelineKey, data); err != nil {
		return &Error{Operation: "save", Key: TimelineKey, Cause: err}
	}
	return nil
}

// Read returns the last snapshot, or nil, nil when there is none. Only
// backend failures are returned as errors.
func (c *TimelineCache) Read(ctx context.Context) (*model.TimelineSnapshot, error) {
	data, ok, err := c.kv.Get(ctx, TimelineKey)
	if err != nil {
		return nil, &Error{Operation: "load", Key: TimelineKey, Cause: err}
	}
	if !ok {
		return nil, nil
	}
	var snap model.TimelineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Tweets == nil {
		logging.Warn("discarding unreadable timeline snapshot", map[string]any{"bytes": len(data)})
		return nil, nil
	}
	return &snap, nil
}
