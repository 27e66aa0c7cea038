package authclient

import (
	"context"
	"encoding/json"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// AuthAPI is the service surface the store depends on. *Service satisfies
// it; tests substitute scripted fakes.
type AuthAPI interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Register(ctx context.Context, req RegisterRequest) (*AuthPayload, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error)
	Profile(ctx context.Context) (*User, error)
	UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error)
	VerifyOTP(ctx context.Context, userID, code string) (*AuthPayload, error)
	VerifyRecoveryCode(ctx context.Context, userID, code string) (*AuthPayload, error)
	Logout(ctx context.Context) error
}

var _ AuthAPI = (*Service)(nil)

// persistedState is the durable subset of the session. Loading, error, and
// initialization flags are transient per process and never written.
type persistedState struct {
	User          *User       `json:"user,omitempty"`
	Tokens        *AuthTokens `json:"tokens,omitempty"`
	Authenticated bool        `json:"is_authenticated"`
	PendingUserID string      `json:"pending_user_id,omitempty"`
}

// Store is the single source of truth for session state and the only
// component allowed to mutate it. It is constructor injected, safe for
// concurrent use, and never holds its lock across a network call.
type Store struct {
	cfg     Config
	api     AuthAPI
	storage Storage
	events  EventSink
	logger  Logger

	mu    sync.Mutex
	state SessionState
	// bootTokens hold hydrated credentials while Initialize is still
	// deciding the final state, so the transport can attach and rotate them
	// before StatusAuthenticated is established.
	bootTokens *AuthTokens

	subMu   sync.Mutex
	subs    map[int]func(SessionState)
	nextSub int

	unwatch func()
}

func NewStore(cfg Config, api AuthAPI, storage Storage) *Store {
	s := &Store{
		cfg:     cfg,
		api:     api,
		storage: storage,
		events:  noopEventSink{},
		logger:  defLogger{},
		state:   SessionState{Status: StatusUninitialized},
		subs:    map[int]func(SessionState){},
	}

	s.unwatch = storage.Watch(s.handleExternalChange)
	return s
}

func (s *Store) WithLogger(logger Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Store) WithEventSink(sink EventSink) *Store {
	s.events = normalizeEventSink(sink)
	return s
}

// Close detaches the storage watcher. The store stays usable; it just stops
// reacting to external changes.
func (s *Store) Close() {
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
}

// Subscribe registers a change listener and returns its cancel func.
// Listeners receive a snapshot after every mutation.
func (s *Store) Subscribe(fn func(SessionState)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Initialize hydrates the session from durable storage, at most once per
// process. With no stored token it settles unauthenticated. With one, it
// fetches the profile; on failure it attempts exactly one refresh and one
// profile retry, then clears. It always ends initialized: that flag is how
// callers distinguish "still loading" from "checked and failed".
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Status != StatusUninitialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	snap := s.loadPersisted()
	remember := s.loadRememberFlag()

	if snap == nil || snap.Tokens == nil || snap.Tokens.AccessToken == "" {
		next := unauthenticatedState()
		if snap != nil && snap.PendingUserID != "" {
			next = pendingTwoFactorState(snap.PendingUserID)
		}
		next.Remember = remember
		return s.apply(next)
	}

	s.mu.Lock()
	s.bootTokens = snap.Tokens.Clone()
	s.mu.Unlock()

	if user, err := s.api.Profile(ctx); err == nil {
		next := authenticatedState(user, s.Tokens())
		next.Remember = remember
		return s.apply(next)
	} else {
		s.logger.Debug("stored token rejected during initialize", "error", err)
	}

	// One explicit refresh, one profile retry, then give up. Never loop.
	if tokens := s.Tokens(); tokens != nil && tokens.RefreshToken != "" {
		if fresh, err := s.api.Refresh(ctx, tokens.RefreshToken); err == nil {
			s.mu.Lock()
			s.bootTokens = fresh.Clone()
			s.mu.Unlock()

			if user, err := s.api.Profile(ctx); err == nil {
				next := authenticatedState(user, fresh)
				next.Remember = remember
				return s.apply(next)
			}
		}
	}

	s.removeStoredKeys()
	return s.apply(unauthenticatedState())
}

// Login authenticates with email and password. Three outcomes: a full
// session, a pending 2FA challenge (credentials stay nil until the second
// factor clears), or an error after rolling back to unauthenticated. The
// structured error is returned so callers can branch on its code.
func (s *Store) Login(ctx context.Context, email, password string, rememberMe bool) error {
	s.beginOperation()
	defer s.endOperation()

	res, err := s.api.Login(ctx, LoginRequest{
		Email:      email,
		Password:   password,
		RememberMe: rememberMe,
	})
	if err != nil {
		s.failAuth(ctx, err)
		emitEvent(ctx, s.events, s.logger, AuthEvent{
			EventType: EventLoginFailure,
			Metadata:  map[string]any{"code": TextCodeOf(err)},
		})
		return err
	}

	if res.TwoFactorRequired {
		next := pendingTwoFactorState(res.PendingUserID)
		next.Remember = rememberMe
		if err := s.apply(next); err != nil {
			return err
		}
		emitEvent(ctx, s.events, s.logger, AuthEvent{
			EventType: EventTwoFactorRequired,
			UserID:    res.PendingUserID,
		})
		return nil
	}

	next := authenticatedState(res.User, res.Tokens)
	next.Remember = rememberMe
	if err := s.apply(next); err != nil {
		return err
	}

	emitEvent(ctx, s.events, s.logger, AuthEvent{
		EventType: EventLoginSuccess,
		UserID:    res.User.ID.String(),
	})
	return nil
}

// Register creates an account and establishes a session. Same success and
// failure shape as Login, without the 2FA branch.
func (s *Store) Register(ctx context.Context, req RegisterRequest) error {
	s.beginOperation()
	defer s.endOperation()

	payload, err := s.api.Register(ctx, req)
	if err != nil {
		s.failAuth(ctx, err)
		return err
	}

	if err := s.apply(authenticatedState(payload.User, payload.Tokens)); err != nil {
		return err
	}

	emitEvent(ctx, s.events, s.logger, AuthEvent{
		EventType: EventRegisterSuccess,
		UserID:    payload.User.ID.String(),
	})
	return nil
}

// Logout notifies the server best-effort and unconditionally clears local
// state. It never fails and is idempotent: calling it while unauthenticated
// leaves the cleared state untouched.
func (s *Store) Logout(ctx context.Context) {
	if s.Snapshot().IsAuthenticated() {
		if err := s.api.Logout(ctx); err != nil {
			s.logger.Warn("server logout notification failed", "error", err)
		}
	}

	s.ClearSession(ReasonLogout)
	emitEvent(ctx, s.events, s.logger, AuthEvent{EventType: EventLogout, Reason: ReasonLogout})
}

// Refresh rotates the token pair. Failure is fatal to the session: state is
// fully cleared and a session expired error surfaced. Stale tokens are never
// left in place.
func (s *Store) Refresh(ctx context.Context) error {
	tokens := s.Tokens()
	if tokens == nil || tokens.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	fresh, err := s.api.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		reason := ReasonTimeout
		if TextCodeOf(err) == TextCodeSessionRevoked {
			reason = ReasonRevoked
		}
		s.ClearSession(reason)
		s.setError(ErrSessionExpired)
		return ErrSessionExpired
	}

	s.SetTokens(fresh)
	return nil
}

// UpdateProfile mutates only the user object; tokens and authentication are
// untouched.
func (s *Store) UpdateProfile(ctx context.Context, req UpdateProfileRequest) error {
	if !s.Snapshot().IsAuthenticated() {
		return ErrSessionExpired
	}

	s.beginOperation()
	defer s.endOperation()

	user, err := s.api.UpdateProfile(ctx, req)
	if err != nil {
		s.setError(err)
		return err
	}

	s.mu.Lock()
	if s.state.Status == StatusAuthenticated {
		s.state.User = user.Clone()
	}
	snapshot := s.state.clone()
	s.mu.Unlock()

	s.persist(snapshot)
	s.notify(snapshot)
	return nil
}

// VerifyOTP submits the second factor and promotes the pending challenge to
// a full session.
func (s *Store) VerifyOTP(ctx context.Context, code string) error {
	return s.completeTwoFactor(ctx, code, s.api.VerifyOTP)
}

// UseRecoveryCode consumes a recovery code in place of an OTP.
func (s *Store) UseRecoveryCode(ctx context.Context, code string) error {
	return s.completeTwoFactor(ctx, code, s.api.VerifyRecoveryCode)
}

func (s *Store) completeTwoFactor(ctx context.Context, code string, verify func(context.Context, string, string) (*AuthPayload, error)) error {
	st := s.Snapshot()
	if !st.RequiresTwoFactor() {
		return ErrNoPendingTwoFactor
	}

	s.beginOperation()
	defer s.endOperation()

	payload, err := verify(ctx, st.PendingUserID, code)
	if err != nil {
		// Stay on the challenge so the user can retry.
		s.setError(err)
		return err
	}

	next := authenticatedState(payload.User, payload.Tokens)
	next.Remember = st.Remember
	if err := s.apply(next); err != nil {
		return err
	}

	emitEvent(ctx, s.events, s.logger, AuthEvent{
		EventType: EventLoginSuccess,
		UserID:    payload.User.ID.String(),
	})
	return nil
}

// SetTwoFactorRequired is the explicit transition helper into the pending
// 2FA state. It enforces mutual exclusion with authentication: credentials
// can never coexist with a pending challenge.
func (s *Store) SetTwoFactorRequired(pendingUserID string) error {
	if pendingUserID == "" {
		return ErrInvalidSessionTransition.WithMetadata(map[string]any{
			"reason": "pending user id is empty",
		})
	}
	return s.apply(pendingTwoFactorState(pendingUserID))
}

// CancelTwoFactor abandons a pending challenge and returns to
// unauthenticated.
func (s *Store) CancelTwoFactor() error {
	if !s.Snapshot().RequiresTwoFactor() {
		return nil
	}
	return s.apply(unauthenticatedState())
}

// DisplayName resolves the presentable name for the current user, "Guest"
// when unauthenticated.
func (s *Store) DisplayName() string {
	return s.Snapshot().User.DisplayName()
}

// HasRole is an exact membership test against the user's single role field.
func (s *Store) HasRole(roles ...UserRole) bool {
	st := s.Snapshot()
	if st.User == nil {
		return false
	}
	return RoleIn(st.User.Role, roles...)
}

// IsAdmin reports whether the current role grants administrative access.
func (s *Store) IsAdmin() bool {
	st := s.Snapshot()
	return st.User != nil && IsAdminRole(st.User.Role)
}

// CanAccess is the role gate used by the route guard: false when
// unauthenticated, true when no roles are required, otherwise an exact
// membership test.
func (s *Store) CanAccess(required ...UserRole) bool {
	st := s.Snapshot()
	if !st.IsAuthenticated() {
		return false
	}
	if len(required) == 0 {
		return true
	}
	return RoleIn(st.User.Role, required...)
}

// Err returns the last user displayable error, nil after ClearError.
func (s *Store) Err() *goerrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastErr
}

// ClearError drops the stored error message; the UI calls this on the next
// input change.
func (s *Store) ClearError() {
	s.setError(nil)
}

// Tokens implements TokenStore for the transport: it reads the durable
// snapshot, boot tokens included during hydration.
func (s *Store) Tokens() *AuthTokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Tokens != nil {
		return s.state.Tokens.Clone()
	}
	return s.bootTokens.Clone()
}

// SetTokens hands a refreshed pair back to the store. The transport never
// mutates tokens directly.
func (s *Store) SetTokens(tokens *AuthTokens) {
	s.mu.Lock()
	if s.state.Status != StatusAuthenticated {
		s.bootTokens = tokens.Clone()
		s.mu.Unlock()
		return
	}
	s.state.Tokens = tokens.Clone()
	snapshot := s.state.clone()
	s.mu.Unlock()

	s.persist(snapshot)
	s.notify(snapshot)
}

// ClearSession tears the whole session down. During hydration it only drops
// boot tokens and lets Initialize settle the final state.
func (s *Store) ClearSession(reason LogoutReason) {
	s.mu.Lock()
	s.bootTokens = nil
	if s.state.Status == StatusUninitialized {
		s.mu.Unlock()
		s.removeStoredKeys()
		return
	}
	s.state = unauthenticatedState()
	snapshot := s.state.clone()
	s.mu.Unlock()

	s.removeStoredKeys()
	s.notify(snapshot)
	s.logger.Info("session cleared", "reason", string(reason))
}

// apply validates and installs the next state, then persists and notifies.
// Every mutating operation goes through here so a half-populated session is
// unrepresentable.
func (s *Store) apply(next SessionState) error {
	s.mu.Lock()
	if !canTransition(s.state.Status, next.Status) {
		from := s.state.Status
		s.mu.Unlock()
		return ErrInvalidSessionTransition.WithMetadata(map[string]any{
			"from": string(from),
			"to":   string(next.Status),
		})
	}
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}

	next.Loading = s.state.Loading
	s.bootTokens = nil
	s.state = next
	snapshot := s.state.clone()
	s.mu.Unlock()

	s.persist(snapshot)
	s.notify(snapshot)
	return nil
}

// failAuth rolls back to unauthenticated after a failed credential exchange
// and records the displayable error.
func (s *Store) failAuth(ctx context.Context, cause error) {
	_ = ctx

	s.mu.Lock()
	s.bootTokens = nil
	s.state = unauthenticatedState()
	s.state.Loading = true // endOperation resets it
	if richErr := asRichError(cause); richErr != nil {
		s.state.LastErr = richErr
	}
	snapshot := s.state.clone()
	s.mu.Unlock()

	s.removeStoredKeys()
	s.notify(snapshot)
}

func (s *Store) beginOperation() {
	s.mu.Lock()
	s.state.Loading = true
	s.state.LastErr = nil
	snapshot := s.state.clone()
	s.mu.Unlock()
	s.notify(snapshot)
}

// endOperation always resets the loading flag, success or failure, so the
// presentation layer can re-enable inputs.
func (s *Store) endOperation() {
	s.mu.Lock()
	s.state.Loading = false
	snapshot := s.state.clone()
	s.mu.Unlock()
	s.notify(snapshot)
}

func (s *Store) setError(err error) {
	s.mu.Lock()
	s.state.LastErr = asRichError(err)
	snapshot := s.state.clone()
	s.mu.Unlock()
	s.notify(snapshot)
}

func (s *Store) notify(snapshot SessionState) {
	s.subMu.Lock()
	fns := make([]func(SessionState), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

func (s *Store) persist(snapshot SessionState) {
	record := persistedState{
		User:          snapshot.User,
		Tokens:        snapshot.Tokens,
		Authenticated: snapshot.IsAuthenticated(),
		PendingUserID: snapshot.PendingUserID,
	}

	raw, err := json.Marshal(record)
	if err != nil {
		s.logger.Error("failed to encode session snapshot", "error", err)
		return
	}

	if err := s.storage.Set(s.cfg.GetStorageKey(), raw); err != nil {
		s.logger.Error("failed to persist session snapshot", "error", err)
	}

	if snapshot.Remember {
		if err := s.storage.Set(s.cfg.GetRememberMeKey(), []byte("true")); err != nil {
			s.logger.Warn("failed to persist remember flag", "error", err)
		}
	} else if err := s.storage.Remove(s.cfg.GetRememberMeKey()); err != nil {
		s.logger.Warn("failed to remove remember flag", "error", err)
	}
}

func (s *Store) loadPersisted() *persistedState {
	raw, ok, err := s.storage.Get(s.cfg.GetStorageKey())
	if err != nil {
		s.logger.Warn("failed to read session snapshot", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	record := &persistedState{}
	if err := json.Unmarshal(raw, record); err != nil {
		s.logger.Warn("discarding unreadable session snapshot", "error", err)
		return nil
	}
	return record
}

func (s *Store) loadRememberFlag() bool {
	raw, ok, err := s.storage.Get(s.cfg.GetRememberMeKey())
	if err != nil || !ok {
		return false
	}
	return string(raw) == "true"
}

func (s *Store) removeStoredKeys() {
	if err := s.storage.Remove(s.cfg.GetStorageKey()); err != nil {
		s.logger.Warn("failed to remove session snapshot", "error", err)
	}
	if err := s.storage.Remove(s.cfg.GetRememberMeKey()); err != nil {
		s.logger.Warn("failed to remove remember flag", "error", err)
	}
}

// handleExternalChange reacts to another context mutating the shared
// storage key. A cleared key is an external logout; anything else forces a
// full reload of the source of truth, never a partial patch.
func (s *Store) handleExternalChange(key string) {
	if key != s.cfg.GetStorageKey() {
		return
	}

	snap := s.loadPersisted()
	if snap == nil || (snap.Tokens == nil && snap.PendingUserID == "") {
		s.mu.Lock()
		alreadyOut := s.state.Status == StatusUnauthenticated
		s.mu.Unlock()
		if alreadyOut {
			return
		}

		s.ClearSession(ReasonLogout)
		emitEvent(context.Background(), s.events, s.logger, AuthEvent{
			EventType: EventForcedLogout,
			Reason:    ReasonLogout,
			Metadata:  map[string]any{"source": "external"},
		})
		return
	}

	next := unauthenticatedState()
	switch {
	case snap.Authenticated && snap.User != nil && snap.Tokens != nil:
		next = authenticatedState(snap.User, snap.Tokens)
	case snap.PendingUserID != "":
		next = pendingTwoFactorState(snap.PendingUserID)
	}
	next.Remember = s.loadRememberFlag()

	s.mu.Lock()
	s.bootTokens = nil
	next.Loading = s.state.Loading
	s.state = next
	snapshot := s.state.clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

func asRichError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "unexpected error").
		WithTextCode(TextCodeInternalServerError)
}
