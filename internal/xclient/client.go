package xclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	twauth "github.com/dghubble/oauth1/twitter"

	"github.com/Li-Victor/Twittter/internal/apierr"
	"github.com/Li-Victor/Twittter/internal/logging"
	"github.com/Li-Victor/Twittter/internal/mapper"
	"github.com/Li-Victor/Twittter/internal/metrics"
	"github.com/Li-Victor/Twittter/internal/model"
	"github.com/Li-Victor/Twittter/internal/store"
)

// DefaultAPIBase is the v1.1 REST root.
const DefaultAPIBase = "https://api.twitter.com/1.1"

// Options configures a Client. Zero values pick the public Twitter endpoints,
// an in-memory credential store and no timeline cache.
type Options struct {
	ConsumerKey    string
	ConsumerSecret string
	Endpoint       oauth1.Endpoint
	APIBase        string
	HTTPClient     Doer
	Timeout        time.Duration

	Credentials *store.CredentialStore
	Timeline    *store.TimelineCache
	// OfflineFallback serves the cached snapshot when a first-page timeline
	// fetch fails at the transport level. The result is flagged FromCache.
	OfflineFallback bool

	// RPS paces outbound requests; <= 0 is unlimited.
	RPS   float64
	Burst int
}

// Authorizer shows the authorization URL to the user and blocks until the
// provider redirects back, returning the callback URL it received.
type Authorizer interface {
	Authorize(ctx context.Context, authURL string) (callbackURL string, err error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, authURL string) (string, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, authURL string) (string, error) {
	return f(ctx, authURL)
}

// Timeline is one page of the home timeline.
type Timeline struct {
	Tweets []model.Tweet
	// FromCache is set when the page came from the local snapshot.
	FromCache  bool
	CapturedAt time.Time
}

// Client exposes the authenticated v1.1 operations.
type Client struct {
	opts   Options
	base   string
	tr     *transport
	signer *Signer
	creds  *store.CredentialStore
	cache  *store.TimelineCache
	events hub
}

// New builds a client and rehydrates the stored credential, if any. An
// unreadable credential record leaves the client logged out.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.ConsumerKey == "" || opts.ConsumerSecret == "" {
		return nil, errors.New("xclient: consumer key and secret are required")
	}
	if opts.Endpoint == (oauth1.Endpoint{}) {
		opts.Endpoint = twauth.AuthorizeEndpoint
	}
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	if opts.Credentials == nil {
		opts.Credentials = store.NewCredentialStore(store.NewMemoryKV())
	}

	tr := &transport{doer: opts.HTTPClient, limiter: newLimiter(opts.RPS, opts.Burst), now: time.Now}
	c := &Client{
		opts:  opts,
		base:  strings.TrimRight(opts.APIBase, "/"),
		tr:    tr,
		creds: opts.Credentials,
		cache: opts.Timeline,
		signer: newSigner(SignerConfig{
			ConsumerKey:    opts.ConsumerKey,
			ConsumerSecret: opts.ConsumerSecret,
			Endpoint:       opts.Endpoint,
		}, tr),
	}

	cred, err := c.creds.Load(ctx)
	switch {
	case err != nil:
		logging.Warn("ignoring stored credential", map[string]any{"err": err.Error()})
	case cred != nil:
		c.signer.Restore(*cred)
		logging.Debug("restored credential", nil)
	}
	return c, nil
}

// Signer exposes the signer for state inspection.
func (c *Client) Signer() *Signer { return c.signer }

// Subscribe registers for session events. cancel closes the channel.
func (c *Client) Subscribe(buffer int) (<-chan Event, func()) {
	return c.events.subscribe(buffer)
}

// Login runs the whole handshake: request token, user authorization through
// auth, access token, persistence and verification. Cancelling ctx while the
// user is authorizing abandons the handshake.
func (c *Client) Login(ctx context.Context, callbackURL string, auth Authorizer) (model.User, error) {
	authURL, err := c.BeginLogin(ctx, callbackURL)
	if err != nil {
		return model.User{}, err
	}
	c.signer.AwaitAuthorization()
	cb, err := auth.Authorize(ctx, authURL)
	if err != nil {
		c.signer.Abandon()
		if ctx.Err() != nil {
			return model.User{}, apierr.Transport("authorize", ctx.Err())
		}
		var ae *apierr.Error
		if errors.As(err, &ae) {
			return model.User{}, err
		}
		return model.User{}, &apierr.Error{Kind: apierr.KindProtocol, Op: "authorize", Message: "authorization did not complete", Err: err}
	}
	return c.HandleCallback(ctx, cb)
}

// BeginLogin starts a handshake and returns the authorization URL.
func (c *Client) BeginLogin(ctx context.Context, callbackURL string) (string, error) {
	return c.signer.BeginLogin(ctx, callbackURL)
}

// HandleCallback finishes a handshake from the provider's redirect URL. When
// verification fails the credential stays stored and the error is returned.
// When the credential cannot be saved the session still works for this
// process: the verified user is returned together with the store error.
func (c *Client) HandleCallback(ctx context.Context, callbackURL string) (model.User, error) {
	cred, err := c.signer.CompleteLogin(ctx, callbackURL)
	if err != nil {
		logging.Error("login failed", map[string]any{"err": err.Error()})
		return model.User{}, err
	}
	saveErr := c.creds.Save(ctx, cred)
	if saveErr != nil {
		logging.Error("credential not persisted", map[string]any{"err": saveErr.Error()})
	}
	user, err := c.VerifyCredentials(ctx)
	if err != nil {
		logging.Error("credential verification failed", map[string]any{"err": err.Error()})
		return model.User{}, err
	}
	logging.Info("Welcome "+user.Name, map[string]any{"screen_name": user.ScreenName})
	u := user
	c.events.publish(Event{Type: EventLoggedIn, At: time.Now(), User: &u, Err: saveErr})
	if saveErr != nil {
		return user, fmt.Errorf("logged in but the credential was not saved: %w", saveErr)
	}
	return user, nil
}

// Logout clears storage and the in-memory session. The in-memory state is
// cleared even when the store fails; that failure is returned.
func (c *Client) Logout(ctx context.Context) error {
	err := c.creds.Clear(ctx)
	c.signer.Logout()
	c.events.publish(Event{Type: EventLoggedOut, At: time.Now()})
	if err != nil {
		logging.Error("credential not cleared from storage", map[string]any{"err": err.Error()})
		return err
	}
	logging.Info("logged out", nil)
	return nil
}

func (c *Client) VerifyCredentials(ctx context.Context) (model.User, error) {
	const op = "verify_credentials"
	data, err := c.call(ctx, op, http.MethodGet, "account/verify_credentials.json", nil, nil)
	if err != nil {
		return model.User{}, err
	}
	u, err := mapper.MapUser(data)
	return u, apierr.WithOp(err, op)
}

// GetHomeTimeline fetches one page, newest first. maxID pages backwards and is
// omitted when empty. The raw page overwrites the timeline snapshot.
func (c *Client) GetHomeTimeline(ctx context.Context, maxID string) (Timeline, error) {
	const op = "home_timeline"
	q := url.Values{"tweet_mode": {"extended"}}
	if maxID != "" {
		q.Set("max_id", maxID)
	}
	data, err := c.call(ctx, op, http.MethodGet, "statuses/home_timeline.json", q, nil)
	if err != nil {
		if maxID == "" && c.opts.OfflineFallback && apierr.IsTransport(err) && ctx.Err() == nil {
			if tl, ok := c.cachedTimeline(ctx); ok {
				logging.Warn("serving cached timeline", map[string]any{"err": err.Error(), "captured_at": tl.CapturedAt})
				return tl, nil
			}
		}
		return Timeline{}, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return Timeline{}, apierr.Parsing(op, "decode timeline", err)
	}
	c.writeCache(ctx, items)

	tweets, err := mapper.MapTweets(items)
	if err != nil {
		return Timeline{}, apierr.WithOp(err, op)
	}
	return Timeline{Tweets: tweets, CapturedAt: time.Now().UTC()}, nil
}

func (c *Client) writeCache(ctx context.Context, items []json.RawMessage) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Write(ctx, items); err != nil {
		metrics.IncCacheWrite("error")
		logging.Warn("timeline cache write failed", map[string]any{"err": err.Error()})
		return
	}
	metrics.IncCacheWrite("ok")
}

func (c *Client) cachedTimeline(ctx context.Context) (Timeline, bool) {
	if c.cache == nil {
		return Timeline{}, false
	}
	snap, err := c.cache.Read(ctx)
	if err != nil || snap == nil {
		return Timeline{}, false
	}
	tweets, err := mapper.MapTweets(snap.Tweets)
	if err != nil {
		logging.Warn("cached timeline unusable", map[string]any{"err": err.Error()})
		return Timeline{}, false
	}
	metrics.CacheFallbacks.Inc()
	return Timeline{Tweets: tweets, FromCache: true, CapturedAt: snap.CapturedAt}, true
}

func (c *Client) Favorite(ctx context.Context, id string) (model.Tweet, error) {
	return c.tweetAction(ctx, "favorite", "favorites/create.json", url.Values{"id": {id}})
}

func (c *Client) Unfavorite(ctx context.Context, id string) (model.Tweet, error) {
	return c.tweetAction(ctx, "unfavorite", "favorites/destroy.json", url.Values{"id": {id}})
}

func (c *Client) Retweet(ctx context.Context, id string) (model.Tweet, error) {
	return c.tweetAction(ctx, "retweet", "statuses/retweet/"+url.PathEscape(id)+".json", nil)
}

func (c *Client) Unretweet(ctx context.Context, id string) (model.Tweet, error) {
	return c.tweetAction(ctx, "unretweet", "statuses/unretweet/"+url.PathEscape(id)+".json", nil)
}

// PostTweet publishes text and returns the created status.
func (c *Client) PostTweet(ctx context.Context, text string) (model.Tweet, error) {
	return c.tweetAction(ctx, "post_tweet", "statuses/update.json", url.Values{"status": {text}})
}

func (c *Client) tweetAction(ctx context.Context, op, path string, body url.Values) (model.Tweet, error) {
	data, err := c.call(ctx, op, http.MethodPost, path, nil, body)
	if err != nil {
		return model.Tweet{}, err
	}
	t, err := mapper.MapTweet(data)
	if err != nil {
		return model.Tweet{}, apierr.WithOp(err, op)
	}
	return t, nil
}

// call signs with a credential snapshot and dispatches. Without a credential
// it fails before touching the network.
func (c *Client) call(ctx context.Context, op, method, path string, query, body url.Values) ([]byte, error) {
	cred := c.signer.Credential()
	if cred == nil {
		return nil, apierr.Auth(op, "not logged in")
	}
	req, err := c.signer.signWith(SignedRequest{
		Method: method,
		URL:    c.base + "/" + path,
		Query:  query,
		Body:   body,
	}, cred, nil)
	if err != nil {
		return nil, apierr.Protocol(op, err.Error())
	}
	return c.tr.send(ctx, op, req)
}
