package xclient

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Li-Victor/Twittter/internal/model"
)

const signatureMethod = "HMAC-SHA1"

// SignedRequest is a request before and after signing. Query and Body hold
// the caller's parameters; OAuth is filled by signing and carries every
// oauth_* parameter including oauth_signature.
type SignedRequest struct {
	Method string
	URL    string
	Query  url.Values
	Body   url.Values
	OAuth  url.Values
}

// Base returns the signature base string the request was signed over.
func (r SignedRequest) Base() (string, error) {
	u, q, err := splitURL(r.URL, r.Query)
	if err != nil {
		return "", err
	}
	return baseString(r.Method, u, collect(q, r.Body, withoutSignature(r.OAuth))), nil
}

// Header returns the Authorization header value for a signed request.
func (r SignedRequest) Header() string {
	return authorizationHeader(r.OAuth)
}

// signInput is everything a signature depends on.
type signInput struct {
	consumerKey    string
	consumerSecret string
	cred           *model.Credential
	nonce          string
	now            time.Time
	extra          url.Values // oauth_callback, oauth_verifier
}

// sign is pure given its input. req's maps are copied, never mutated.
func sign(req SignedRequest, in signInput) (SignedRequest, error) {
	if req.Method == "" {
		return SignedRequest{}, fmt.Errorf("sign: empty method")
	}
	base, query, err := splitURL(req.URL, req.Query)
	if err != nil {
		return SignedRequest{}, err
	}

	oauth := url.Values{}
	oauth.Set("oauth_consumer_key", in.consumerKey)
	oauth.Set("oauth_nonce", in.nonce)
	oauth.Set("oauth_signature_method", signatureMethod)
	oauth.Set("oauth_timestamp", strconv.FormatInt(in.now.Unix(), 10))
	oauth.Set("oauth_version", "1.0")
	tokenSecret := ""
	if in.cred != nil {
		oauth.Set("oauth_token", in.cred.Token)
		tokenSecret = in.cred.TokenSecret
	}
	for k, vs := range in.extra {
		oauth[k] = append([]string(nil), vs...)
	}

	bs := baseString(req.Method, base, collect(query, req.Body, oauth))
	oauth.Set("oauth_signature", signature(in.consumerSecret, tokenSecret, bs))

	return SignedRequest{
		Method: strings.ToUpper(req.Method),
		URL:    base,
		Query:  query,
		Body:   cloneValues(req.Body),
		OAuth:  oauth,
	}, nil
}

// splitURL strips the query and fragment from raw, folding any embedded query
// parameters into a copy of extra. The returned URL has a lowercase scheme
// and host and no default port.
func splitURL(raw string, extra url.Values) (string, url.Values, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, fmt.Errorf("sign: parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", nil, fmt.Errorf("sign: url %q is not absolute", raw)
	}
	q := cloneValues(extra)
	for k, vs := range u.Query() {
		q[k] = append(q[k], vs...)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if p := u.Port(); p != "" && !(scheme == "http" && p == "80") && !(scheme == "https" && p == "443") {
		host += ":" + p
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path, q, nil
}

type pair struct{ k, v string }

// collect merges parameter sets into encoded pairs.
func collect(sets ...url.Values) []pair {
	var out []pair
	for _, s := range sets {
		for k, vs := range s {
			for _, v := range vs {
				out = append(out, pair{rfc3986(k), rfc3986(v)})
			}
		}
	}
	return out
}

// normalize sorts encoded pairs by key, then value, and joins them as k=v&...
func normalize(ps []pair) string {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].k != ps[j].k {
			return ps[i].k < ps[j].k
		}
		return ps[i].v < ps[j].v
	})
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, p.k+"="+p.v)
	}
	return strings.Join(parts, "&")
}

func baseString(method, baseURL string, ps []pair) string {
	return strings.ToUpper(method) + "&" + rfc3986(baseURL) + "&" + rfc3986(normalize(ps))
}

func signature(consumerSecret, tokenSecret, base string) string {
	key := rfc3986(consumerSecret) + "&" + rfc3986(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	_, _ = mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func authorizationHeader(oauth url.Values) string {
	keys := make([]string, 0, len(oauth))
	for k := range oauth {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", rfc3986(k), rfc3986(oauth.Get(k))))
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// rfc3986 percent-encodes everything outside the unreserved set.
// QueryEscape already escapes '*'; only the space form differs.
func rfc3986(s string) string { return strings.ReplaceAll(url.QueryEscape(s), "+", "%20") }

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newNonce returns 43 alphanumerics drawn from crypto/rand.
func newNonce() string {
	const n = 43
	out := make([]byte, 0, n)
	buf := make([]byte, 64)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("crypto/rand: %v", err))
		}
		for _, b := range buf {
			// 248 = 4*62; rejecting above keeps the draw uniform.
			if b < 248 && len(out) < n {
				out = append(out, nonceAlphabet[int(b)%len(nonceAlphabet)])
			}
		}
	}
	return string(out)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func withoutSignature(oauth url.Values) url.Values {
	out := cloneValues(oauth)
	out.Del("oauth_signature")
	return out
}
