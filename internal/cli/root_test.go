package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Li-Victor/Twittter/internal/apierr"
	"github.com/Li-Victor/Twittter/internal/config"
	"github.com/Li-Victor/Twittter/internal/model"
	"github.com/Li-Victor/Twittter/internal/store"
)

const timelineBody = `[
 {"id_str": "2", "full_text": "second", "favorite_count": 0, "retweet_count": 0, "user": {"name": "Ada", "screen_name": "ada"}},
 {"id_str": "1", "full_text": "first", "favorite_count": 4, "retweet_count": 2, "user": {"name": "Bob", "screen_name": "bob"}}
]`

type env struct {
	dir     string
	cfgPath string
	api     *httptest.Server
	authz   atomic.Value // last Authorization header
}

func newEnv(t *testing.T) *env {
	t.Helper()
	for _, k := range []string{"X_CONSUMER_KEY", "X_CONSUMER_SECRET", "TWITTTER_NO_KEYRING", "LOG_LEVEL", "METRICS_ADDR"} {
		t.Setenv(k, "")
	}
	e := &env{dir: t.TempDir()}
	e.authz.Store("")
	mux := http.NewServeMux()
	mux.HandleFunc("/1.1/account/verify_credentials.json", func(w http.ResponseWriter, r *http.Request) {
		e.authz.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id_str": "7", "name": "Ada", "screen_name": "ada"}`))
	})
	mux.HandleFunc("/1.1/statuses/home_timeline.json", func(w http.ResponseWriter, r *http.Request) {
		e.authz.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(timelineBody))
	})
	e.api = httptest.NewServer(mux)
	t.Cleanup(e.api.Close)

	cfg := config.Default()
	cfg.Credentials = config.CredentialsConfig{ConsumerKey: "ck", ConsumerSecret: "cs"}
	cfg.Endpoints.RequestTokenURL = e.api.URL + "/oauth/request_token"
	cfg.Endpoints.AuthorizeURL = e.api.URL + "/oauth/authorize"
	cfg.Endpoints.AccessTokenURL = e.api.URL + "/oauth/access_token"
	cfg.Endpoints.APIBase = e.api.URL + "/1.1"
	cfg.Storage = config.StorageConfig{
		DBPath:         filepath.Join(e.dir, "cache.db"),
		CredentialsDir: e.dir,
		NoKeyring:      true,
	}
	cfg.Log.Level = "error"
	e.cfgPath = filepath.Join(e.dir, "config.yaml")
	require.NoError(t, config.Save(e.cfgPath, cfg))
	return e
}

func (e *env) login(t *testing.T) {
	t.Helper()
	creds := store.NewCredentialStore(store.NewFileKV(e.dir))
	require.NoError(t, creds.Save(context.Background(), model.Credential{Token: "at", TokenSecret: "ats"}))
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd, a := newRoot(&out, &errOut)
	cmd.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	require.NoError(t, a.close())
	return out.String(), err
}

func TestInitWritesConfigOnce(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "fresh", "config.yaml")

	var out bytes.Buffer
	cmd, a := newRoot(&out, &bytes.Buffer{})
	t.Cleanup(func() { _ = a.close() })
	cmd.SetArgs([]string{"--config", path, "init", "--consumer-key", "k1", "--consumer-secret", "s1"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Config written to:")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "k1", cfg.Credentials.ConsumerKey)

	cmd, a = newRoot(&bytes.Buffer{}, &bytes.Buffer{})
	t.Cleanup(func() { _ = a.close() })
	cmd.SetArgs([]string{"--config", path, "init"})
	assert.ErrorContains(t, cmd.Execute(), "already exists")
}

func TestWhoamiSignsWithStoredCredential(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, err := e.run(t, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Ada (@ada) id=7\n", out)
	h := e.authz.Load().(string)
	assert.True(t, strings.HasPrefix(h, "OAuth "))
	assert.Contains(t, h, `oauth_token="at"`)
	assert.Contains(t, h, `oauth_consumer_key="ck"`)
}

func TestWhoamiLoggedOut(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "whoami")
	require.Error(t, err)
	assert.True(t, apierr.IsAuthentication(err))
	assert.Equal(t, apierr.ExitAuthentication, apierr.ExitCode(err))
	assert.Empty(t, e.authz.Load().(string), "no request without a credential")
}

func TestTimelineThenStatus(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, err := e.run(t, "timeline")
	require.NoError(t, err)
	assert.Contains(t, out, "second")
	assert.Contains(t, out, "@bob")
	assert.Contains(t, out, "--max-id 1")

	out, err = e.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "session:  authenticated")
	assert.Contains(t, out, "cache:    2 tweets")
}

func TestLogoutClearsStoredCredential(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, err := e.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	cred, err := store.NewCredentialStore(store.NewFileKV(e.dir)).Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cred)

	out, err = e.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "session:  unauthenticated")
	assert.Contains(t, out, "cache:    empty")
}

func TestMissingConsumerKeyIsUsageError(t *testing.T) {
	e := newEnv(t)
	cfg, err := config.Load(e.cfgPath)
	require.NoError(t, err)
	cfg.Credentials = config.CredentialsConfig{}
	require.NoError(t, config.Save(e.cfgPath, cfg))

	_, err = e.run(t, "status")
	require.Error(t, err)
	assert.Equal(t, apierr.ExitUsage, apierr.ExitCode(err))
}

func TestLogoutWithoutConsumerKeys(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	cfg, err := config.Load(e.cfgPath)
	require.NoError(t, err)
	cfg.Credentials = config.CredentialsConfig{}
	require.NoError(t, config.Save(e.cfgPath, cfg))

	out, err := e.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	cred, err := store.NewCredentialStore(store.NewFileKV(e.dir)).Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestTweetActionNeedsID(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "favorite")
	assert.Error(t, err)
}
