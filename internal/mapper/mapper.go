// Package mapper turns raw v1.1 status and user objects into model values.
// Functions here are pure: no I/O, no shared state.
package mapper

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Li-Victor/Twittter/internal/apierr"
	"github.com/Li-Victor/Twittter/internal/model"
)

// CreatedAtLayout is the v1.1 timestamp format, e.g. "Wed Aug 27 13:08:45 +0000 2008".
const CreatedAtLayout = time.RubyDate

// MapTweet maps one status object. A retweet is unwrapped so the result
// describes the original status, with RetweetedBy set to the outer author.
func MapTweet(raw []byte) (model.Tweet, error) {
	root, err := object(raw)
	if err != nil {
		return model.Tweet{}, err
	}
	src := root
	var by *model.User
	if orig := root.Get("retweeted_status"); orig.IsObject() {
		outer, err := requiredUser(root)
		if err != nil {
			return model.Tweet{}, err
		}
		by = &outer
		src = orig
	}
	return tweetFrom(src, by)
}

// MapTweets maps a timeline page in order. It stops at the first malformed
// element: a missing required field usually means the schema moved, and a
// partial page would hide that.
func MapTweets(items []json.RawMessage) ([]model.Tweet, error) {
	out := make([]model.Tweet, 0, len(items))
	for i, it := range items {
		t, err := MapTweet(it)
		if err != nil {
			return nil, apierr.Parsing("map_tweets", fmt.Sprintf("element %d", i), err)
		}
		out = append(out, t)
	}
	return out, nil
}

// MapUser maps a user object. Every field is optional; the object itself is not.
func MapUser(raw []byte) (model.User, error) {
	root, err := object(raw)
	if err != nil {
		return model.User{}, err
	}
	return userFrom(root), nil
}

func object(raw []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, apierr.Parsing("map", "invalid json", nil)
	}
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return gjson.Result{}, apierr.Parsing("map", "expected a json object", nil)
	}
	return r, nil
}

func tweetFrom(r gjson.Result, by *model.User) (model.Tweet, error) {
	id := idOf(r)
	if id == "" {
		return model.Tweet{}, missing("id")
	}
	text := r.Get("full_text")
	if text.Type != gjson.String {
		text = r.Get("text")
	}
	if text.Type != gjson.String {
		return model.Tweet{}, missing("text")
	}
	author, err := requiredUser(r)
	if err != nil {
		return model.Tweet{}, err
	}
	favs, err := count(r, "favorite_count")
	if err != nil {
		return model.Tweet{}, err
	}
	rts, err := count(r, "retweet_count")
	if err != nil {
		return model.Tweet{}, err
	}

	t := model.Tweet{
		ID:            id,
		Text:          text.String(),
		FavoriteCount: favs,
		Favorited:     r.Get("favorited").Type == gjson.True,
		RetweetCount:  rts,
		Retweeted:     r.Get("retweeted").Type == gjson.True,
		Author:        author,
		RetweetedBy:   by,
	}
	if ca := r.Get("created_at"); ca.Type == gjson.String {
		t.CreatedAtRaw = ca.String()
		if ts, err := time.Parse(CreatedAtLayout, t.CreatedAtRaw); err == nil {
			t.CreatedAt = ts.UTC()
		}
	}
	return t, nil
}

// idOf prefers id_str. The numeric id is taken from the raw literal so large
// values are never rounded through float64.
func idOf(r gjson.Result) string {
	if s := r.Get("id_str"); s.Type == gjson.String && s.String() != "" {
		return s.String()
	}
	if n := r.Get("id"); n.Type == gjson.Number {
		return strings.TrimSpace(n.Raw)
	}
	if s := r.Get("id"); s.Type == gjson.String {
		return s.String()
	}
	return ""
}

func requiredUser(r gjson.Result) (model.User, error) {
	u := r.Get("user")
	if !u.IsObject() {
		return model.User{}, missing("user")
	}
	return userFrom(u), nil
}

func userFrom(u gjson.Result) model.User {
	return model.User{
		ID:              idOf(u),
		Name:            u.Get("name").String(),
		ScreenName:      u.Get("screen_name").String(),
		ProfileImageURL: u.Get("profile_image_url_https").String(),
		Raw:             json.RawMessage(u.Raw),
	}
}

func count(r gjson.Result, field string) (int, error) {
	v := r.Get(field)
	if v.Type != gjson.Number {
		return 0, missing(field)
	}
	n := v.Int()
	if n < 0 || float64(n) != v.Num {
		return 0, apierr.Parsing("map_tweet", fmt.Sprintf("%s must be a non-negative integer, got %s", field, v.Raw), nil)
	}
	return int(n), nil
}

func missing(field string) error {
	return apierr.Parsing("map_tweet", "missing required field "+field, nil)
}
