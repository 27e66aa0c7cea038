package authclient

import (
	"context"
	"io"
	"net/http"
	"sync"
)

// TokenStore is the slice of the auth store the transport is allowed to
// touch: it reads the current pair and hands refreshed tokens back. It never
// mutates tokens in place.
type TokenStore interface {
	Tokens() *AuthTokens
	SetTokens(tokens *AuthTokens)
	ClearSession(reason LogoutReason)
}

// RefreshFunc exchanges a refresh token for a new pair. It must go through a
// bare client: routing it back through this transport would recurse on 401.
type RefreshFunc func(ctx context.Context, refreshToken string) (*AuthTokens, error)

type refreshCall struct {
	done   chan struct{}
	tokens *AuthTokens
	err    error
}

// Transport attaches the bearer token to outbound requests and transparently
// retries a request once after a 401 by refreshing the token pair. At most
// one refresh call is in flight at any time: concurrent 401s await the same
// shared call and replay with the single new token. A logical request is
// never retried more than once, so a server that always answers 401 cannot
// produce a retry loop.
type Transport struct {
	base    http.RoundTripper
	store   TokenStore
	refresh RefreshFunc
	events  EventSink
	logger  Logger

	mu       sync.Mutex
	inflight *refreshCall
}

func NewTransport(store TokenStore, refresh RefreshFunc) *Transport {
	return &Transport{
		base:    http.DefaultTransport,
		store:   store,
		refresh: refresh,
		events:  noopEventSink{},
		logger:  defLogger{},
	}
}

func (t *Transport) WithBase(base http.RoundTripper) *Transport {
	if base != nil {
		t.base = base
	}
	return t
}

func (t *Transport) WithLogger(logger Logger) *Transport {
	if logger != nil {
		t.logger = logger
	}
	return t
}

func (t *Transport) WithEventSink(sink EventSink) *Transport {
	t.events = normalizeEventSink(sink)
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	attempt := req.Clone(req.Context())
	t.attach(attempt)

	res, err := t.base.RoundTrip(attempt)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusUnauthorized {
		return res, nil
	}

	tokens, refreshErr := t.refreshTokens(req.Context())
	if refreshErr != nil {
		// The session is already torn down; the caller gets its original
		// 401 and the shell reacts to the forced logout event.
		return res, nil
	}

	retry, ok := t.rewind(req)
	if !ok {
		t.logger.Warn("cannot replay request with non-rewindable body", "method", req.Method, "url", req.URL.Path)
		return res, nil
	}

	drain(res)
	retry.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	return t.base.RoundTrip(retry)
}

func (t *Transport) attach(req *http.Request) {
	if tokens := t.store.Tokens(); tokens != nil && tokens.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	}
}

// rewind rebuilds a replayable copy of req. Requests whose body cannot be
// re-materialized are not retried.
func (t *Transport) rewind(req *http.Request) (*http.Request, bool) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, true
	}
	if req.GetBody == nil {
		return nil, false
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	retry.Body = body
	return retry, true
}

// refreshTokens coalesces concurrent refresh attempts into one network call.
// Callers that arrive while a refresh is pending await its outcome instead
// of triggering their own.
func (t *Transport) refreshTokens(ctx context.Context) (*AuthTokens, error) {
	t.mu.Lock()
	if t.inflight != nil {
		call := t.inflight
		t.mu.Unlock()
		select {
		case <-call.done:
			return call.tokens, call.err
		case <-ctx.Done():
			return nil, NewNetworkError(ctx.Err())
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	t.inflight = call
	t.mu.Unlock()

	call.tokens, call.err = t.runRefresh(ctx)

	close(call.done)

	t.mu.Lock()
	t.inflight = nil
	t.mu.Unlock()

	return call.tokens, call.err
}

func (t *Transport) runRefresh(ctx context.Context) (*AuthTokens, error) {
	current := t.store.Tokens()
	if current == nil || current.RefreshToken == "" {
		t.forceLogout(ctx, ErrNoRefreshToken)
		return nil, ErrNoRefreshToken
	}

	tokens, err := t.refresh(ctx, current.RefreshToken)
	if err != nil {
		t.forceLogout(ctx, err)
		return nil, err
	}

	t.store.SetTokens(tokens)
	emitEvent(ctx, t.events, t.logger, AuthEvent{EventType: EventTokenRefreshed})
	return tokens, nil
}

// forceLogout tears the session down after a fatal refresh failure. Stale
// tokens are never left behind.
func (t *Transport) forceLogout(ctx context.Context, cause error) {
	reason := ReasonTimeout
	if TextCodeOf(cause) == TextCodeSessionRevoked {
		reason = ReasonRevoked
	}

	t.store.ClearSession(reason)
	emitEvent(ctx, t.events, t.logger, AuthEvent{
		EventType: EventForcedLogout,
		Reason:    reason,
		Metadata:  map[string]any{"cause": cause.Error()},
	})
}

func drain(res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
	_ = res.Body.Close()
}
