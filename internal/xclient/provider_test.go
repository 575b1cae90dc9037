package xclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dghubble/oauth1"
	"github.com/stretchr/testify/require"

	"github.com/Li-Victor/Twittter/internal/model"
	"github.com/Li-Victor/Twittter/internal/store"
)

const (
	testConsumerKey    = "ck"
	testConsumerSecret = "cs"
	testRequestToken   = "rt"
	testRequestSecret  = "rts"
	testAccessToken    = "at"
	testAccessSecret   = "ats"
)

const verifyUserJSON = `{"id": 6253282, "id_str": "6253282", "name": "Twitter API", "screen_name": "TwitterAPI"}`

// provider is a fake OAuth provider plus v1.1 API. Handlers registered in
// routes override the defaults; every request is signature-checked.
type provider struct {
	t      *testing.T
	srv    *httptest.Server
	hits   atomic.Int64
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	last   map[string]SignedRequest
}

func newProvider(t *testing.T) *provider {
	t.Helper()
	p := &provider{t: t, routes: map[string]http.HandlerFunc{}, last: map[string]SignedRequest{}}
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.srv.Close)

	p.handle("/oauth/request_token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("oauth_token=" + testRequestToken + "&oauth_token_secret=" + testRequestSecret + "&oauth_callback_confirmed=true"))
	})
	p.handle("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("oauth_token=" + testAccessToken + "&oauth_token_secret=" + testAccessSecret + "&user_id=6253282"))
	})
	p.handle("/1.1/account/verify_credentials.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(verifyUserJSON))
	})
	return p
}

func (p *provider) handle(path string, h http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[path] = h
}

func (p *provider) serve(w http.ResponseWriter, r *http.Request) {
	p.hits.Add(1)
	signed := requestAsSigned(p.t, r)

	secret := ""
	switch signed.OAuth.Get("oauth_token") {
	case "":
	case testRequestToken:
		secret = testRequestSecret
	case testAccessToken:
		secret = testAccessSecret
	default:
		secret = "unknown"
	}
	if !verifySignature(p.t, signed, testConsumerSecret, secret) {
		http.Error(w, `{"errors":[{"code":32,"message":"Could not authenticate you."}]}`, http.StatusUnauthorized)
		return
	}

	p.mu.Lock()
	p.last[r.URL.Path] = signed
	h := p.routes[r.URL.Path]
	p.mu.Unlock()
	if h == nil {
		http.Error(w, `{"errors":[{"code":34,"message":"Sorry, that page does not exist."}]}`, http.StatusNotFound)
		return
	}
	h(w, r)
}

// lastRequest returns the most recent verified request for path.
func (p *provider) lastRequest(path string) (SignedRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.last[path]
	return r, ok
}

func (p *provider) endpoint() oauth1.Endpoint {
	return oauth1.Endpoint{
		RequestTokenURL: p.srv.URL + "/oauth/request_token",
		AuthorizeURL:    p.srv.URL + "/oauth/authorize",
		AccessTokenURL:  p.srv.URL + "/oauth/access_token",
	}
}

func (p *provider) options() Options {
	return Options{
		ConsumerKey:    testConsumerKey,
		ConsumerSecret: testConsumerSecret,
		Endpoint:       p.endpoint(),
		APIBase:        p.srv.URL + "/1.1",
		HTTPClient:     p.srv.Client(),
	}
}

func (p *provider) client(opts Options) *Client {
	p.t.Helper()
	c, err := New(context.Background(), opts)
	require.NoError(p.t, err)
	return c
}

// loggedInClient returns a client with the access credential already stored.
func (p *provider) loggedInClient(mutate func(*Options)) (*Client, *store.CredentialStore) {
	p.t.Helper()
	creds := store.NewCredentialStore(store.NewMemoryKV())
	require.NoError(p.t, creds.Save(context.Background(), accessCredential()))
	opts := p.options()
	opts.Credentials = creds
	if mutate != nil {
		mutate(&opts)
	}
	return p.client(opts), creds
}

const testCallback = "http://127.0.0.1:8976/callback"

func callbackFor(token, verifier string) string {
	return testCallback + "?oauth_token=" + token + "&oauth_verifier=" + verifier
}

func accessCredential() model.Credential {
	return model.Credential{Token: testAccessToken, TokenSecret: testAccessSecret}
}
