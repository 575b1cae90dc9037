package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Li-Victor/Twittter/internal/callback"
	"github.com/Li-Victor/Twittter/internal/cmdlog"
	"github.com/Li-Victor/Twittter/internal/config"
	"github.com/Li-Victor/Twittter/internal/jobs"
	"github.com/Li-Victor/Twittter/internal/model"
	"github.com/Li-Victor/Twittter/internal/store"
	"github.com/Li-Victor/Twittter/internal/theme"
	"github.com/Li-Victor/Twittter/internal/xclient"
)

func newInitCmd(a *app) *cobra.Command {
	var key, secret string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("init", func() error {
				if _, err := os.Stat(a.cfgPath); err == nil && !force {
					return fmt.Errorf("%s already exists (use --force to overwrite)", a.cfgPath)
				}
				cfg := config.Default()
				cfg.Credentials.ConsumerKey = key
				cfg.Credentials.ConsumerSecret = secret
				if err := config.Save(a.cfgPath, cfg); err != nil {
					return err
				}
				abs, _ := filepath.Abs(a.cfgPath)
				fmt.Fprint(a.out, theme.Banner())
				fmt.Fprintln(a.out, "Config written to:", abs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "consumer-key", "", "Application consumer key")
	cmd.Flags().StringVar(&secret, "consumer-secret", "", "Application consumer secret")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var noBrowser bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize this application with your account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("login", func() error {
				ctx := cmd.Context()
				c, err := a.clientFor(ctx)
				if err != nil {
					return err
				}
				open := a.open
				if noBrowser {
					open = nil
				}
				srv, err := callback.New(a.cfg.Endpoints.CallbackURL, open, a.errOut)
				if err != nil {
					return err
				}
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				user, err := c.Login(ctx, a.cfg.Endpoints.CallbackURL, srv)
				if user.ScreenName != "" {
					fmt.Fprintln(a.out, theme.Welcome(user))
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for authorization")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("logout", func() error {
				ctx := cmd.Context()
				if err := a.cfg.Validate(); err != nil {
					// No consumer keys: clear the stored credential without a client.
					if err := store.NewCredentialStore(a.credentialKV(ctx)).Clear(ctx); err != nil {
						return err
					}
					fmt.Fprintln(a.out, "Logged out.")
					return nil
				}
				c, err := a.clientFor(ctx)
				if err != nil {
					return err
				}
				if err := c.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Logged out.")
				return nil
			})
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("whoami", func() error {
				c, err := a.clientFor(cmd.Context())
				if err != nil {
					return err
				}
				u, err := c.VerifyCredentials(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s (@%s) id=%s\n", u.Name, u.ScreenName, u.ID)
				return nil
			})
		},
	}
}

func newTimelineCmd(a *app) *cobra.Command {
	var maxID string
	var follow bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show your home timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("timeline", func() error {
				ctx := cmd.Context()
				c, err := a.clientFor(ctx)
				if err != nil {
					return err
				}
				if follow {
					if maxID != "" {
						return errors.New("--follow cannot be combined with --max-id")
					}
					if interval <= 0 {
						interval = a.cfg.Timeline.FollowInterval
					}
					f := jobs.NewFollower(c, func(tl xclient.Timeline, fresh []model.Tweet) {
						// Oldest first so the newest ends at the bottom of the terminal.
						for i := len(fresh) - 1; i >= 0; i-- {
							theme.WriteTweet(a.out, fresh[i])
						}
					})
					err := f.Run(ctx, interval)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				tl, err := c.GetHomeTimeline(ctx, maxID)
				if err != nil {
					return err
				}
				a.printTimeline(tl)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&maxID, "max-id", "", "Only show tweets with an ID at or below this one")
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep polling for new tweets")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Polling interval for --follow (default from config)")
	return cmd
}

func (a *app) printTimeline(tl xclient.Timeline) {
	if tl.FromCache {
		fmt.Fprintf(a.out, "offline: showing timeline cached at %s\n\n", tl.CapturedAt.Local().Format(time.DateTime))
	}
	if len(tl.Tweets) == 0 {
		fmt.Fprintln(a.out, "No tweets.")
		return
	}
	for _, t := range tl.Tweets {
		theme.WriteTweet(a.out, t)
	}
	last := tl.Tweets[len(tl.Tweets)-1]
	fmt.Fprintf(a.out, "older: twittter timeline --max-id %s\n", last.ID)
}

type tweetAction func(c *xclient.Client, ctx context.Context, id string) (model.Tweet, error)

func newTweetActionCmd(a *app, name, short string, do tweetAction) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <tweet-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run(name, func() error {
				c, err := a.clientFor(cmd.Context())
				if err != nil {
					return err
				}
				t, err := do(c, cmd.Context(), args[0])
				if err != nil {
					return err
				}
				theme.WriteTweet(a.out, t)
				return nil
			})
		},
	}
}

func newPostCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "post <text>",
		Short: "Publish a tweet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("post", func() error {
				c, err := a.clientFor(cmd.Context())
				if err != nil {
					return err
				}
				t, err := c.PostTweet(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				theme.WriteTweet(a.out, t)
				return nil
			})
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and cache state without calling the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("status", func() error {
				ctx := cmd.Context()
				c, err := a.clientFor(ctx)
				if err != nil {
					return err
				}
				st := c.Signer().State()
				fmt.Fprintf(a.out, "session:  %s\n", st.Phase)
				if st.Reason != "" {
					fmt.Fprintf(a.out, "reason:   %s\n", st.Reason)
				}
				fmt.Fprintf(a.out, "api:      %s\n", a.cfg.Endpoints.APIBase)
				snap, err := a.timeline.Read(ctx)
				switch {
				case err != nil:
					fmt.Fprintf(a.out, "cache:    unreadable (%v)\n", err)
				case snap == nil:
					fmt.Fprintln(a.out, "cache:    empty")
				default:
					fmt.Fprintf(a.out, "cache:    %d tweets captured %s\n", len(snap.Tweets), snap.CapturedAt.Local().Format(time.DateTime))
				}
				return nil
			})
		},
	}
}
