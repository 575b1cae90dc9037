// Package callback runs the loopback listener that receives the provider's
// redirect at the end of the authorization step.
package callback

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/Li-Victor/Twittter/internal/logging"
)

// Opener shows url to the user, normally by launching a browser.
type Opener func(url string) error

// Server is a one-shot loopback HTTP server. Authorize binds it, hands the
// authorization URL to the opener and waits for the redirect.
type Server struct {
	callback *url.URL
	open     Opener
	out      io.Writer

	mu   sync.Mutex
	addr string
}

// New prepares a server for callbackURL, which must be an http URL on a
// loopback host. open may be nil, in which case the URL is only printed.
func New(callbackURL string, open Opener, out io.Writer) (*Server, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("callback url: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("callback url %q: only http loopback callbacks can be served", callbackURL)
	}
	host := u.Hostname()
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, fmt.Errorf("callback url %q: host must be loopback", callbackURL)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	if out == nil {
		out = os.Stderr
	}
	return &Server{callback: u, open: open, out: out}, nil
}

// Addr is the bound address, empty before Authorize has started listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Authorize implements xclient.Authorizer.
func (s *Server) Authorize(ctx context.Context, authURL string) (string, error) {
	ln, err := net.Listen("tcp", s.callback.Host)
	if err != nil {
		return "", fmt.Errorf("failed to bind to %s: %w", s.callback.Host, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	results := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(s.callback.Path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("oauth_token") == "" && q.Get("denied") == "" {
			http.Error(w, "missing oauth_token", http.StatusBadRequest)
			return
		}
		cb := *s.callback
		cb.Host = s.Addr()
		cb.RawQuery = r.URL.RawQuery
		select {
		case results <- cb.String():
		default:
		}
		writePage(w, q.Get("denied") == "")
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("callback server stopped", map[string]any{"err": err.Error()})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(s.out, "Open this URL in your browser to authorize:\n%s\n", authURL)
	if s.open != nil {
		if err := s.open(authURL); err != nil {
			logging.Warn("could not open browser", map[string]any{"err": err.Error()})
		}
	}

	select {
	case cb := <-results:
		return cb, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func writePage(w http.ResponseWriter, ok bool) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	title, msg := "Authorized", "You can close this window and return to the terminal."
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		title, msg = "Authorization denied", "The application was not authorized."
	}
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%[1]s</title></head>
<body><h1>%[1]s</h1><p>%[2]s</p></body>
</html>
`, html.EscapeString(title), html.EscapeString(msg))
}

// OpenBrowser launches the platform browser on url.
func OpenBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return exec.Command(cmd, args...).Start()
}
