package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Li-Victor/Twittter/internal/apierr"
)

const plainTweet = `{
	"id": 1050118621198921728,
	"id_str": "1050118621198921728",
	"text": "hello world",
	"favorite_count": 4,
	"favorited": true,
	"retweet_count": 2,
	"retweeted": false,
	"created_at": "Wed Oct 10 20:19:24 +0000 2018",
	"user": {"id_str": "6253282", "name": "alice", "screen_name": "alice_a"}
}`

func TestMapTweetPlain(t *testing.T) {
	tw, err := MapTweet([]byte(plainTweet))
	require.NoError(t, err)

	assert.Equal(t, "1050118621198921728", tw.ID)
	assert.Equal(t, "hello world", tw.Text)
	assert.Equal(t, 4, tw.FavoriteCount)
	assert.True(t, tw.Favorited)
	assert.Equal(t, 2, tw.RetweetCount)
	assert.False(t, tw.Retweeted)
	assert.Equal(t, "alice", tw.Author.Name)
	assert.Equal(t, "alice_a", tw.Author.ScreenName)
	assert.Equal(t, "6253282", tw.Author.ID)
	assert.Nil(t, tw.RetweetedBy, "no retweeted_status means no retweeter")
	assert.Equal(t, time.Date(2018, 10, 10, 20, 19, 24, 0, time.UTC), tw.CreatedAt)
	assert.Equal(t, "Wed Oct 10 20:19:24 +0000 2018", tw.CreatedAtRaw)
}

func TestMapTweetUnwrapsRetweet(t *testing.T) {
	raw := `{
		"id_str": "2", "text": "RT @orig_author: orig",
		"favorite_count": 0, "retweet_count": 9,
		"user": {"name": "alice"},
		"retweeted_status": {
			"id_str": "1", "text": "orig",
			"favorite_count": 5, "retweet_count": 9,
			"user": {"name": "orig_author"}
		}
	}`
	tw, err := MapTweet([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "1", tw.ID)
	assert.Equal(t, "orig", tw.Text)
	assert.Equal(t, 5, tw.FavoriteCount)
	assert.Equal(t, "orig_author", tw.Author.Name)
	require.NotNil(t, tw.RetweetedBy)
	assert.Equal(t, "alice", tw.RetweetedBy.Name)
	assert.True(t, tw.IsRetweet())
}

func TestMapTweetDefaults(t *testing.T) {
	raw := `{"id_str": "7", "text": "x", "favorite_count": 0, "retweet_count": 0, "user": {}}`
	tw, err := MapTweet([]byte(raw))
	require.NoError(t, err)

	assert.False(t, tw.Favorited, "absent favorited defaults to false")
	assert.False(t, tw.Retweeted)
	assert.True(t, tw.CreatedAt.IsZero())
	assert.Empty(t, tw.CreatedAtRaw)
	assert.Nil(t, tw.RetweetedBy)
}

func TestMapTweetNumericIDKeepsPrecision(t *testing.T) {
	// 2^63-1 cannot round-trip through float64.
	raw := `{"id": 9223372036854775807, "text": "x", "favorite_count": 0, "retweet_count": 0, "user": {}}`
	tw, err := MapTweet([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "9223372036854775807", tw.ID)
}

func TestMapTweetPrefersFullText(t *testing.T) {
	raw := `{"id_str": "1", "text": "trunc…", "full_text": "the whole thing", "favorite_count": 0, "retweet_count": 0, "user": {}}`
	tw, err := MapTweet([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "the whole thing", tw.Text)
}

func TestMapTweetRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing id", `{"text": "x", "favorite_count": 0, "retweet_count": 0, "user": {}}`},
		{"missing text", `{"id_str": "1", "favorite_count": 0, "retweet_count": 0, "user": {}}`},
		{"missing user", `{"id_str": "1", "text": "x", "favorite_count": 0, "retweet_count": 0}`},
		{"user not object", `{"id_str": "1", "text": "x", "favorite_count": 0, "retweet_count": 0, "user": "bob"}`},
		{"missing favorite_count", `{"id_str": "1", "text": "x", "retweet_count": 0, "user": {}}`},
		{"missing retweet_count", `{"id_str": "1", "text": "x", "favorite_count": 0, "user": {}}`},
		{"negative count", `{"id_str": "1", "text": "x", "favorite_count": -1, "retweet_count": 0, "user": {}}`},
		{"fractional count", `{"id_str": "1", "text": "x", "favorite_count": 1.5, "retweet_count": 0, "user": {}}`},
		{"retweet missing outer user", `{"id_str": "2", "text": "x", "favorite_count": 0, "retweet_count": 0,
			"retweeted_status": {"id_str": "1", "text": "o", "favorite_count": 0, "retweet_count": 0, "user": {}}}`},
		{"not an object", `[1,2,3]`},
		{"invalid json", `{"id_str": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MapTweet([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, apierr.IsParsing(err), "got %v", err)
		})
	}
}

func TestMapTweetIdempotent(t *testing.T) {
	a, err := MapTweet([]byte(plainTweet))
	require.NoError(t, err)
	b, err := MapTweet([]byte(plainTweet))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMapTweetsFailFast(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(plainTweet),
		json.RawMessage(`{"text": "no id", "favorite_count": 0, "retweet_count": 0, "user": {}}`),
		json.RawMessage(plainTweet),
	}
	tweets, err := MapTweets(items)
	require.Error(t, err)
	assert.Nil(t, tweets, "no partial result")
	assert.True(t, apierr.IsParsing(err))
	assert.Contains(t, err.Error(), "element 1")
	assert.Contains(t, err.Error(), "id")
}

func TestMapTweetsKeepsOrder(t *testing.T) {
	mk := func(id string) json.RawMessage {
		return json.RawMessage(`{"id_str":"` + id + `","text":"t","favorite_count":0,"retweet_count":0,"user":{}}`)
	}
	tweets, err := MapTweets([]json.RawMessage{mk("3"), mk("2"), mk("1")})
	require.NoError(t, err)
	require.Len(t, tweets, 3)
	assert.Equal(t, []string{"3", "2", "1"}, []string{tweets[0].ID, tweets[1].ID, tweets[2].ID})
}

func TestMapUser(t *testing.T) {
	u, err := MapUser([]byte(`{"id": 12, "name": "Jack", "screen_name": "jack", "profile_image_url_https": "https://img/x.png", "followers_count": 5}`))
	require.NoError(t, err)
	assert.Equal(t, "12", u.ID)
	assert.Equal(t, "Jack", u.Name)
	assert.Equal(t, "jack", u.ScreenName)
	assert.Equal(t, "https://img/x.png", u.ProfileImageURL)
	assert.Contains(t, string(u.Raw), "followers_count")

	_, err = MapUser([]byte(`"jack"`))
	assert.True(t, apierr.IsParsing(err))
}
