package model

import (
	"encoding/json"
	"time"
)

// Credential is the access token pair authorizing signed requests as one user.
// It is replaced wholesale on login and logout, never edited in place.
type Credential struct {
	Token       string `json:"token"`
	TokenSecret string `json:"token_secret"`
}

// Valid reports whether both halves of the pair are present.
func (c Credential) Valid() bool {
	return c.Token != "" && c.TokenSecret != ""
}

// User is the minimal author/account shape. Raw keeps the full payload for
// callers that need fields not modelled here.
type User struct {
	ID              string
	Name            string
	ScreenName      string
	ProfileImageURL string
	Raw             json.RawMessage
}

// Tweet is an immutable status value built by the mapper.
type Tweet struct {
	ID            string
	Text          string
	FavoriteCount int
	Favorited     bool
	RetweetCount  int
	Retweeted     bool
	Author        User
	CreatedAt     time.Time // zero when created_at was absent or unparseable
	CreatedAtRaw  string
	// RetweetedBy is the retweeting user when this value was unwrapped from a
	// retweet; the other fields then describe the original status.
	RetweetedBy *User
}

// IsRetweet reports whether t was unwrapped from a retweet.
func (t Tweet) IsRetweet() bool { return t.RetweetedBy != nil }

// CreatedAtShort renders the creation date as M/D/YY, or the raw value when
// it could not be parsed.
func (t Tweet) CreatedAtShort() string {
	if t.CreatedAt.IsZero() {
		return t.CreatedAtRaw
	}
	return t.CreatedAt.Format("1/2/06")
}

// WithFavorited returns a copy with the favorite flag set and the count
// adjusted locally. Used for optimistic updates after a favorite call.
func (t Tweet) WithFavorited(on bool) Tweet {
	if t.Favorited == on {
		return t
	}
	t.Favorited = on
	t.FavoriteCount = bump(t.FavoriteCount, on)
	return t
}

// WithRetweeted is the retweet counterpart of WithFavorited.
func (t Tweet) WithRetweeted(on bool) Tweet {
	if t.Retweeted == on {
		return t
	}
	t.Retweeted = on
	t.RetweetCount = bump(t.RetweetCount, on)
	return t
}

func bump(n int, up bool) int {
	if up {
		return n + 1
	}
	if n > 0 {
		return n - 1
	}
	return 0
}

// TimelineSnapshot is the raw payload of the most recent timeline fetch.
type TimelineSnapshot struct {
	Tweets     []json.RawMessage `json:"tweets"`
	CapturedAt time.Time         `json:"captured_at"`
}
