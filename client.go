package authclient

import (
	"context"
	"net/http"
)

// Client wires the full stack together: a bare service for the refresh
// endpoint, the coalescing transport on top of it, the authenticated
// service, the store, and the guard. Every piece stays individually
// constructable for callers that need custom wiring.
type Client struct {
	Store   *Store
	Service *Service
	Guard   *Guard

	transport *Transport
	verifier  TokenVerifier
}

// ClientOption customizes client construction.
type ClientOption func(*clientOptions)

type clientOptions struct {
	storage  Storage
	logger   Logger
	events   EventSink
	base     http.RoundTripper
	deviceID string
	verifier TokenVerifier
}

// WithStorage sets the durable storage backend. Defaults to in-memory.
func WithStorage(storage Storage) ClientOption {
	return func(o *clientOptions) {
		if storage != nil {
			o.storage = storage
		}
	}
}

// WithLogger overrides the default stdout logger.
func WithLogger(logger Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventSink receives session lifecycle events, forced logouts included.
func WithEventSink(sink EventSink) ClientOption {
	return func(o *clientOptions) {
		o.events = normalizeEventSink(sink)
	}
}

// WithBaseTransport replaces the underlying round tripper (proxies, tests).
func WithBaseTransport(base http.RoundTripper) ClientOption {
	return func(o *clientOptions) {
		if base != nil {
			o.base = base
		}
	}
}

// WithDeviceID pins the device identifier sent on every request. Defaults
// to a fingerprint derived from the host.
func WithDeviceID(id string) ClientOption {
	return func(o *clientOptions) {
		o.deviceID = id
	}
}

// WithTokenVerifier enables local access token verification, e.g. a
// JWKSVerifier pointed at the backend's JWK set.
func WithTokenVerifier(v TokenVerifier) ClientOption {
	return func(o *clientOptions) {
		o.verifier = v
	}
}

// New assembles a ready to use client for the auth API at cfg.GetBaseURL().
func New(cfg Config, opts ...ClientOption) *Client {
	options := &clientOptions{
		storage: NewMemoryStorage(),
		logger:  defLogger{},
		events:  noopEventSink{},
		base:    http.DefaultTransport,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	deviceID := options.deviceID
	if deviceID == "" {
		if id, err := HostDeviceFingerprint(cfg); err == nil {
			deviceID = id.String()
		}
	}

	// The refresh call must bypass the 401 interceptor or it would recurse.
	refreshService := NewService(cfg, &http.Client{
		Transport: options.base,
		Timeout:   cfg.GetRequestTimeout(),
	}).WithLogger(options.logger).WithDeviceID(deviceID)

	client := &Client{Guard: NewGuard(cfg), verifier: options.verifier}

	var store *Store
	lazyStore := tokenStoreFunc{
		tokens: func() *AuthTokens { return store.Tokens() },
		set:    func(t *AuthTokens) { store.SetTokens(t) },
		clear:  func(r LogoutReason) { store.ClearSession(r) },
	}

	transport := NewTransport(lazyStore, refreshService.Refresh).
		WithBase(options.base).
		WithLogger(options.logger).
		WithEventSink(options.events)

	service := NewService(cfg, &http.Client{
		Transport: transport,
		Timeout:   cfg.GetRequestTimeout(),
	}).WithLogger(options.logger).WithDeviceID(deviceID)

	store = NewStore(cfg, service, options.storage).
		WithLogger(options.logger).
		WithEventSink(options.events)

	client.Store = store
	client.Service = service
	client.transport = transport
	return client
}

// VerifyAccessToken checks the current access token against the configured
// verifier. Without one it falls back to an unverified expiry peek.
func (c *Client) VerifyAccessToken() (*AccessClaims, error) {
	tokens := c.Store.Tokens()
	if tokens == nil || tokens.AccessToken == "" {
		return nil, ErrNoRefreshToken
	}

	if c.verifier != nil {
		return c.verifier.Verify(tokens.AccessToken)
	}
	return PeekClaims(tokens.AccessToken)
}

// Close releases the store's storage watcher.
func (c *Client) Close() {
	c.Store.Close()
}

var _ TokenStore = tokenStoreFunc{}

// tokenStoreFunc breaks the construction cycle between transport and store:
// the transport is built first and resolves the store lazily.
type tokenStoreFunc struct {
	tokens func() *AuthTokens
	set    func(*AuthTokens)
	clear  func(LogoutReason)
}

func (f tokenStoreFunc) Tokens() *AuthTokens         { return f.tokens() }
func (f tokenStoreFunc) SetTokens(t *AuthTokens)     { f.set(t) }
func (f tokenStoreFunc) ClearSession(r LogoutReason) { f.clear(r) }

// Initialize hydrates the store; call it once at startup before routing.
func (c *Client) Initialize(ctx context.Context) error {
	return c.Store.Initialize(ctx)
}
