package xclient

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/Li-Victor/Twittter/internal/apierr"
	"github.com/Li-Victor/Twittter/internal/metrics"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

const maxResponseBytes = 8 << 20

// transport dispatches signed requests and classifies the outcome. It never
// retries.
type transport struct {
	doer    Doer
	limiter *rate.Limiter
	now     func() time.Time
}

func (t *transport) send(ctx context.Context, op string, req SignedRequest) ([]byte, error) {
	start := time.Now()
	body, err := t.roundTrip(ctx, op, req)
	outcome := "ok"
	if err != nil {
		outcome = string(apierr.KindOf(err))
	}
	metrics.ObserveAPI(op, outcome, start)
	return body, err
}

func (t *transport) roundTrip(ctx context.Context, op string, req SignedRequest) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, apierr.Transport(op, err)
	}

	target := req.URL
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = strings.NewReader(req.Body.Encode())
	}
	hr, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, apierr.Transport(op, err)
	}
	hr.Header.Set("Authorization", req.Header())
	hr.Header.Set("Accept", "application/json")
	if body != nil {
		hr.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := t.doer.Do(hr)
	if err != nil {
		return nil, apierr.Transport(op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apierr.Transport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, t.statusError(op, resp, data)
	}
	return data, nil
}

func (t *transport) statusError(op string, resp *http.Response, data []byte) *apierr.Error {
	e := apierr.FromStatus(op, resp.StatusCode, errorMessage(resp.StatusCode, data))
	if resp.StatusCode == http.StatusTooManyRequests {
		e.RetryAfter = t.retryAfter(resp.Header)
	}
	return e
}

// retryAfter reads Retry-After (seconds or HTTP date), then x-rate-limit-reset
// (epoch seconds). Zero when neither is usable.
func (t *transport) retryAfter(h http.Header) time.Duration {
	now := t.now()
	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(ra); err == nil {
			if d := at.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	if reset := h.Get("x-rate-limit-reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d.Round(time.Second)
			}
		}
	}
	return 0
}

// errorMessage pulls the first v1.1 error message from the body, falling back
// to the status text.
func errorMessage(status int, data []byte) string {
	if gjson.ValidBytes(data) {
		r := gjson.ParseBytes(data)
		if m := r.Get("errors.0.message"); m.Type == gjson.String {
			return m.String()
		}
		if m := r.Get("error"); m.Type == gjson.String {
			return m.String()
		}
	}
	return http.StatusText(status)
}
