package authclient_test

import (
	"context"
	"sync"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockAuthAPI implements authclient.AuthAPI
type MockAuthAPI struct {
	mock.Mock
}

func (m *MockAuthAPI) Login(ctx context.Context, req authclient.LoginRequest) (*authclient.LoginResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*authclient.LoginResult)
	return res, args.Error(1)
}

func (m *MockAuthAPI) Register(ctx context.Context, req authclient.RegisterRequest) (*authclient.AuthPayload, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*authclient.AuthPayload)
	return res, args.Error(1)
}

func (m *MockAuthAPI) Refresh(ctx context.Context, refreshToken string) (*authclient.AuthTokens, error) {
	args := m.Called(ctx, refreshToken)
	res, _ := args.Get(0).(*authclient.AuthTokens)
	return res, args.Error(1)
}

func (m *MockAuthAPI) Profile(ctx context.Context) (*authclient.User, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*authclient.User)
	return res, args.Error(1)
}

func (m *MockAuthAPI) UpdateProfile(ctx context.Context, req authclient.UpdateProfileRequest) (*authclient.User, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*authclient.User)
	return res, args.Error(1)
}

func (m *MockAuthAPI) VerifyOTP(ctx context.Context, userID, code string) (*authclient.AuthPayload, error) {
	args := m.Called(ctx, userID, code)
	res, _ := args.Get(0).(*authclient.AuthPayload)
	return res, args.Error(1)
}

func (m *MockAuthAPI) VerifyRecoveryCode(ctx context.Context, userID, code string) (*authclient.AuthPayload, error) {
	args := m.Called(ctx, userID, code)
	res, _ := args.Get(0).(*authclient.AuthPayload)
	return res, args.Error(1)
}

func (m *MockAuthAPI) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// recorderSink collects every emitted auth event.
type recorderSink struct {
	mu     sync.Mutex
	events []authclient.AuthEvent
}

func (r *recorderSink) Record(_ context.Context, event authclient.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorderSink) byType(t authclient.AuthEventType) []authclient.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []authclient.AuthEvent
	for _, e := range r.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type silentLogger struct{}

func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Info(string, ...any)  {}
func (silentLogger) Warn(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}

func testConfig() *authclient.ClientConfig {
	return authclient.NewConfig("https://app.example.com")
}

func testUser() *authclient.User {
	return &authclient.User{
		ID:        uuid.New(),
		Email:     "sarah.chen@example.com",
		FirstName: "Sarah",
		LastName:  "Chen",
		Role:      authclient.RoleManager,
	}
}

func testTokens() *authclient.AuthTokens {
	return &authclient.AuthTokens{
		AccessToken:  "access-" + uuid.NewString(),
		RefreshToken: "refresh-" + uuid.NewString(),
	}
}

func newTestStore(api authclient.AuthAPI, storage authclient.Storage, sink authclient.EventSink) *authclient.Store {
	if storage == nil {
		storage = authclient.NewMemoryStorage()
	}
	store := authclient.NewStore(testConfig(), api, storage).WithLogger(silentLogger{})
	if sink != nil {
		store = store.WithEventSink(sink)
	}
	return store
}

// initializeUnauthenticated settles a fresh store so mutating operations can
// transition out of the uninitialized status.
func initializeUnauthenticated(store *authclient.Store) {
	_ = store.Initialize(context.Background())
}
