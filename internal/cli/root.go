// Package cli wires configuration, storage and the API client into the
// twittter command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Li-Victor/Twittter/internal/apierr"
	"github.com/Li-Victor/Twittter/internal/callback"
	"github.com/Li-Victor/Twittter/internal/config"
	"github.com/Li-Victor/Twittter/internal/logging"
	"github.com/Li-Victor/Twittter/internal/metrics"
	"github.com/Li-Victor/Twittter/internal/store"
	"github.com/Li-Victor/Twittter/internal/xclient"
)

// app carries what the commands share. The client is built lazily so that
// init and help work without consumer credentials.
type app struct {
	cfgPath     string
	metricsAddr string
	logLevel    string

	out    io.Writer
	errOut io.Writer
	open   callback.Opener

	cfg      config.Config
	client   *xclient.Client
	timeline *store.TimelineCache
	cacheDB  *store.SQLiteKV
	metrics  *http.Server
}

func newRoot(out, errOut io.Writer) (*cobra.Command, *app) {
	a := &app{out: out, errOut: errOut, open: callback.OpenBrowser}

	cmd := &cobra.Command{
		Use:           "twittter",
		Short:         "Terminal client for the Twitter v1.1 API",
		Long:          "twittter signs in with OAuth 1.0a and reads and acts on your home timeline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.setup()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.cfgPath, "config", config.DefaultPath(), "Config file path")
	cmd.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newInitCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newTimelineCmd(a),
		newTweetActionCmd(a, "favorite", "Like a tweet", (*xclient.Client).Favorite),
		newTweetActionCmd(a, "unfavorite", "Remove a like", (*xclient.Client).Unfavorite),
		newTweetActionCmd(a, "retweet", "Retweet a tweet", (*xclient.Client).Retweet),
		newTweetActionCmd(a, "unretweet", "Undo a retweet", (*xclient.Client).Unretweet),
		newPostCmd(a),
		newStatusCmd(a),
	)
	return cmd, a
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, a := newRoot(os.Stdout, os.Stderr)
	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil {
		logging.Warn("shutdown", map[string]any{"err": cerr.Error()})
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return apierr.ExitCode(err)
	}
	return apierr.ExitOK
}

func (a *app) setup() error {
	if _, err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	a.cfg = cfg
	logging.Setup(a.errOut, cfg.Log.Level, cfg.Log.Pretty)
	a.metrics = metrics.StartServer(cfg.Metrics.Addr)
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, a.metrics.Shutdown(ctx))
		cancel()
		a.metrics = nil
	}
	if a.cacheDB != nil {
		errs = append(errs, a.cacheDB.Close())
		a.cacheDB = nil
	}
	return errors.Join(errs...)
}

func (a *app) credentialKV(ctx context.Context) store.KV {
	st := a.cfg.Storage
	return store.OpenCredentialKV(ctx, store.CredentialOptions{
		Service:   st.KeyringService,
		Dir:       st.CredentialsDir,
		NoKeyring: st.NoKeyring,
	})
}

// clientFor opens the stores and builds the API client once per run.
func (a *app) clientFor(ctx context.Context) (*xclient.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	st := a.cfg.Storage
	credKV := a.credentialKV(ctx)

	if err := os.MkdirAll(filepath.Dir(st.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	db, err := store.OpenSQLite(st.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", st.DBPath, err)
	}
	a.cacheDB = db
	a.timeline = store.NewTimelineCache(db)

	c, err := xclient.New(ctx, xclient.Options{
		ConsumerKey:     a.cfg.Credentials.ConsumerKey,
		ConsumerSecret:  a.cfg.Credentials.ConsumerSecret,
		Endpoint:        a.cfg.Endpoint(),
		APIBase:         a.cfg.Endpoints.APIBase,
		Timeout:         a.cfg.HTTP.Timeout,
		Credentials:     store.NewCredentialStore(credKV),
		Timeline:        a.timeline,
		OfflineFallback: a.cfg.Timeline.OfflineFallback,
		RPS:             a.cfg.HTTP.RPS,
		Burst:           a.cfg.HTTP.Burst,
	})
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}
