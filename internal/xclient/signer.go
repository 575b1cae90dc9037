package xclient

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/google/uuid"

	"github.com/Li-Victor/Twittter/internal/apierr"
	"github.com/Li-Victor/Twittter/internal/logging"
	"github.com/Li-Victor/Twittter/internal/metrics"
	"github.com/Li-Victor/Twittter/internal/model"
)

// Phase is a step of the three-legged handshake.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseRequestTokenObtained
	PhaseAwaitingAuthorization
	PhaseAuthenticated
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseRequestTokenObtained:
		return "request_token_obtained"
	case PhaseAwaitingAuthorization:
		return "awaiting_authorization"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// HandshakeState is the signer's handshake phase. Reason is set for PhaseFailed.
type HandshakeState struct {
	Phase  Phase
	Reason string
}

// attempt is one handshake. A new BeginLogin replaces it; results arriving
// for a replaced attempt are dropped.
type attempt struct {
	id     string
	token  string
	secret string
}

// SignerConfig configures a Signer.
type SignerConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Endpoint       oauth1.Endpoint
}

// Signer owns the consumer keys, the current credential and the handshake.
// All mutable state sits behind one mutex; signing itself works on a
// snapshot and takes no lock while hashing.
type Signer struct {
	cfg   SignerConfig
	tr    *transport
	now   func() time.Time
	nonce func() string

	mu      sync.Mutex
	cred    *model.Credential
	state   HandshakeState
	pending *attempt
}

func newSigner(cfg SignerConfig, tr *transport) *Signer {
	return &Signer{
		cfg:   cfg,
		tr:    tr,
		now:   time.Now,
		nonce: newNonce,
	}
}

// Sign signs req with the current credential, or consumer-only when logged out.
func (s *Signer) Sign(req SignedRequest) (SignedRequest, error) {
	return s.signWith(req, s.Credential(), nil)
}

func (s *Signer) signWith(req SignedRequest, cred *model.Credential, extra url.Values) (SignedRequest, error) {
	out, err := sign(req, signInput{
		consumerKey:    s.cfg.ConsumerKey,
		consumerSecret: s.cfg.ConsumerSecret,
		cred:           cred,
		nonce:          s.nonce(),
		now:            s.now(),
		extra:          extra,
	})
	if err == nil {
		metrics.Signatures.Inc()
	}
	return out, err
}

// BeginLogin fetches a request token and returns the URL the user must open.
// Any pending attempt is superseded and the phase rests until the new
// request token arrives.
func (s *Signer) BeginLogin(ctx context.Context, callbackURL string) (string, error) {
	const op = "request_token"
	a := &attempt{id: uuid.NewString()}
	s.mu.Lock()
	if s.pending != nil {
		logging.Info("superseding pending handshake", map[string]any{"attempt": s.pending.id})
	}
	s.pending = a
	s.setState(s.restingState())
	s.mu.Unlock()

	vals, err := s.tokenRequest(ctx, op, s.cfg.Endpoint.RequestTokenURL, nil,
		url.Values{"oauth_callback": {callbackURL}})
	if err == nil {
		switch {
		case vals.Get("oauth_token") == "" || vals.Get("oauth_token_secret") == "":
			err = apierr.Protocol(op, "response lacks oauth_token or oauth_token_secret")
		case vals.Get("oauth_callback_confirmed") != "true":
			err = apierr.Protocol(op, "callback not confirmed")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != a {
		return "", apierr.Protocol(op, "handshake superseded")
	}
	if err != nil {
		s.pending = nil
		s.setState(s.restingState())
		return "", err
	}
	a.token, a.secret = vals.Get("oauth_token"), vals.Get("oauth_token_secret")
	s.setState(HandshakeState{Phase: PhaseRequestTokenObtained})
	return s.authorizeURL(a.token)
}

func (s *Signer) authorizeURL(token string) (string, error) {
	u, err := url.Parse(s.cfg.Endpoint.AuthorizeURL)
	if err != nil {
		return "", apierr.Protocol("authorize", "bad authorize url: "+err.Error())
	}
	q := u.Query()
	q.Set("oauth_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// AwaitAuthorization records that the authorization URL has been handed to the user.
func (s *Signer) AwaitAuthorization() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil && s.state.Phase == PhaseRequestTokenObtained {
		s.setState(HandshakeState{Phase: PhaseAwaitingAuthorization})
	}
}

// CompleteLogin exchanges the verifier in callbackURL for an access credential.
func (s *Signer) CompleteLogin(ctx context.Context, callbackURL string) (model.Credential, error) {
	const op = "access_token"
	cb, err := url.Parse(callbackURL)
	if err != nil {
		return model.Credential{}, apierr.Protocol(op, "unparseable callback url")
	}
	q := cb.Query()

	s.mu.Lock()
	a := s.pending
	if a == nil || (s.state.Phase != PhaseRequestTokenObtained && s.state.Phase != PhaseAwaitingAuthorization) {
		s.mu.Unlock()
		return model.Credential{}, apierr.Protocol(op, "no handshake pending")
	}
	if a.token == "" {
		s.mu.Unlock()
		return model.Credential{}, apierr.Protocol(op, "request token not yet obtained")
	}
	if denied := q.Get("denied"); denied != "" {
		s.fail("authorization denied")
		s.mu.Unlock()
		return model.Credential{}, apierr.Protocol(op, "authorization denied")
	}
	if q.Get("oauth_token") != a.token {
		s.mu.Unlock()
		return model.Credential{}, apierr.Protocol(op, "callback token does not match the pending request token")
	}
	verifier := q.Get("oauth_verifier")
	if verifier == "" {
		s.fail("callback missing oauth_verifier")
		s.mu.Unlock()
		return model.Credential{}, apierr.Protocol(op, "callback missing oauth_verifier")
	}
	s.mu.Unlock()

	reqCred := &model.Credential{Token: a.token, TokenSecret: a.secret}
	vals, err := s.tokenRequest(ctx, op, s.cfg.Endpoint.AccessTokenURL, reqCred,
		url.Values{"oauth_verifier": {verifier}})
	var cred model.Credential
	if err == nil {
		cred = model.Credential{Token: vals.Get("oauth_token"), TokenSecret: vals.Get("oauth_token_secret")}
		if !cred.Valid() {
			err = apierr.Protocol(op, "response lacks oauth_token or oauth_token_secret")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != a {
		return model.Credential{}, apierr.Protocol(op, "handshake superseded")
	}
	s.pending = nil
	if err != nil {
		s.fail(err.Error())
		return model.Credential{}, err
	}
	c := cred
	s.cred = &c
	s.setState(HandshakeState{Phase: PhaseAuthenticated})
	return cred, nil
}

// Abandon drops a pending handshake. A held credential stays usable.
func (s *Signer) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil && s.state.Phase != PhaseFailed {
		return
	}
	s.pending = nil
	s.setState(s.restingState())
}

// Logout forgets the credential and any pending handshake. No storage I/O.
func (s *Signer) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	s.pending = nil
	s.setState(HandshakeState{Phase: PhaseUnauthenticated})
}

// Restore installs a credential loaded from storage.
func (s *Signer) Restore(c model.Credential) {
	if !c.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &c
	if s.pending == nil {
		s.setState(HandshakeState{Phase: PhaseAuthenticated})
	}
}

func (s *Signer) HasCredential() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred != nil
}

// Credential returns a copy of the current credential, or nil.
func (s *Signer) Credential() *model.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil
	}
	c := *s.cred
	return &c
}

func (s *Signer) State() HandshakeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// restingState is where the signer settles when no handshake is pending.
// Callers hold s.mu.
func (s *Signer) restingState() HandshakeState {
	if s.cred != nil {
		return HandshakeState{Phase: PhaseAuthenticated}
	}
	return HandshakeState{Phase: PhaseUnauthenticated}
}

// fail marks the current attempt failed. Callers hold s.mu.
func (s *Signer) fail(reason string) {
	s.pending = nil
	s.setState(HandshakeState{Phase: PhaseFailed, Reason: reason})
}

func (s *Signer) setState(st HandshakeState) {
	if s.state != st {
		metrics.IncHandshake(st.Phase.String())
	}
	s.state = st
}

// tokenRequest performs a signed POST against a token endpoint and decodes the
// form-encoded reply.
func (s *Signer) tokenRequest(ctx context.Context, op, endpoint string, cred *model.Credential, extra url.Values) (url.Values, error) {
	req, err := s.signWith(SignedRequest{Method: "POST", URL: endpoint}, cred, extra)
	if err != nil {
		return nil, apierr.Protocol(op, err.Error())
	}
	body, err := s.tr.send(ctx, op, req)
	if err != nil {
		return nil, err
	}
	vals, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, apierr.Protocol(op, "response is not form encoded")
	}
	return vals, nil
}
