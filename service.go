package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// TwoFactorStatusRequired is the login response discriminator for accounts
// with a second factor enabled.
const TwoFactorStatusRequired = "2FA_REQUIRED"

const apiPrefix = "/api/v1/auth"

// envelope is the wire format every auth endpoint responds with.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Code    string          `json:"code,omitempty"`
	Details map[string]any  `json:"details,omitempty"`
}

// AuthPayload is a full credential grant: the authenticated user plus the
// token pair.
type AuthPayload struct {
	User   *User       `json:"user"`
	Tokens *AuthTokens `json:"tokens"`
}

// LoginResult is either a full grant or a pending 2FA challenge, never both.
type LoginResult struct {
	TwoFactorRequired bool
	PendingUserID     string
	User              *User
	Tokens            *AuthTokens
}

type loginData struct {
	Status        string      `json:"status,omitempty"`
	PendingUserID string      `json:"userId,omitempty"`
	User          *User       `json:"user,omitempty"`
	Tokens        *AuthTokens `json:"tokens,omitempty"`
}

// LoginRequest payload
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

// RegisterRequest payload
type RegisterRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Organization    string `json:"organization,omitempty"`
	Phone           string `json:"phone_number,omitempty"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhone)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// UpdateProfileRequest payload. Only the profile fields travel; role and
// verification flags are server owned.
type UpdateProfileRequest struct {
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Organization string `json:"organization,omitempty"`
	Phone        string `json:"phone_number,omitempty"`
}

func (r UpdateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.Phone, validation.By(ValidatePhone)),
	)
}

// ChangePasswordRequest payload
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(10, 100)),
	)
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// SendOTPRequest payload. Phone is normalized to E.164 before it travels.
type SendOTPRequest struct {
	UserID  string `json:"userId"`
	Channel string `json:"channel,omitempty"`
	Phone   string `json:"phone_number,omitempty"`
}

func (r SendOTPRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Phone, validation.By(ValidatePhone)),
	)
}

// ValidateStringEquals builds an ozzo rule asserting equality with expected.
func ValidateStringEquals(expected string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != expected {
			return goerrors.New("values do not match", goerrors.CategoryValidation).
				WithTextCode(TextCodeValidationError)
		}
		return nil
	}
}

// DefaultPhoneRegion is the region used to parse phone numbers without a
// country prefix.
var DefaultPhoneRegion = "US"

// ValidatePhone is an ozzo rule accepting empty or parseable phone numbers.
func ValidatePhone(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	_, err := NormalizePhone(raw, DefaultPhoneRegion)
	return err
}

// NormalizePhone parses raw in the given region and returns the E.164 form.
func NormalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithTextCode(TextCodeValidationError)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidationError)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Service is the stateless request/response mapping layer for the auth API.
// It owns no session state: every method either returns the typed success
// payload or a structured error from the taxonomy in errors.go.
type Service struct {
	cfg      Config
	client   HTTPClient
	logger   Logger
	deviceID string
}

// NewService builds a Service on top of client. Pass the transport-wrapped
// client so bearer attachment and 401 refresh happen transparently; the
// refresh endpoint itself is always called through a bare client.
func NewService(cfg Config, client HTTPClient) *Service {
	if client == nil {
		client = &http.Client{Timeout: cfg.GetRequestTimeout()}
	}
	return &Service{
		cfg:    cfg,
		client: client,
		logger: defLogger{},
	}
}

func (s *Service) WithLogger(logger Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithDeviceID attaches a stable device identifier to every request.
func (s *Service) WithDeviceID(id string) *Service {
	s.deviceID = id
	return s
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, wrapValidation(err)
	}

	data := &loginData{}
	if err := s.do(ctx, http.MethodPost, "/login", req, data); err != nil {
		return nil, err
	}

	if data.Status == TwoFactorStatusRequired {
		if data.PendingUserID == "" {
			return nil, FromWireError(http.StatusBadGateway, "", "2FA challenge missing user id", nil)
		}
		// Never leak partial credentials alongside a pending challenge.
		return &LoginResult{
			TwoFactorRequired: true,
			PendingUserID:     data.PendingUserID,
		}, nil
	}

	if data.User == nil || data.Tokens == nil {
		return nil, FromWireError(http.StatusBadGateway, "", "login response missing credentials", nil)
	}

	return &LoginResult{User: data.User, Tokens: data.Tokens}, nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthPayload, error) {
	if err := req.Validate(); err != nil {
		return nil, wrapValidation(err)
	}

	if req.Phone != "" {
		normalized, err := NormalizePhone(req.Phone, DefaultPhoneRegion)
		if err != nil {
			return nil, err
		}
		req.Phone = normalized
	}

	payload := &AuthPayload{}
	if err := s.do(ctx, http.MethodPost, "/register", req, payload); err != nil {
		return nil, err
	}

	if payload.User == nil || payload.Tokens == nil {
		return nil, FromWireError(http.StatusBadGateway, "", "register response missing credentials", nil)
	}
	return payload, nil
}

// Refresh exchanges a refresh token for a new token pair. Called by the
// transport's coalescer and by Store.Refresh, never through the
// 401-intercepting client.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	body := map[string]string{"refresh_token": refreshToken}
	tokens := &AuthTokens{}
	if err := s.do(ctx, http.MethodPost, "/refresh", body, tokens); err != nil {
		return nil, err
	}

	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, FromWireError(http.StatusBadGateway, "", "refresh response missing tokens", nil)
	}
	return tokens, nil
}

func (s *Service) Profile(ctx context.Context) (*User, error) {
	user := &User{}
	if err := s.do(ctx, http.MethodGet, "/profile", nil, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, wrapValidation(err)
	}

	if req.Phone != "" {
		normalized, err := NormalizePhone(req.Phone, DefaultPhoneRegion)
		if err != nil {
			return nil, err
		}
		req.Phone = normalized
	}

	user := &User{}
	if err := s.do(ctx, http.MethodPut, "/profile", req, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return wrapValidation(err)
	}
	return s.do(ctx, http.MethodPost, "/change-password", req, nil)
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return wrapValidation(err)
	}
	return s.do(ctx, http.MethodPost, "/request-password-reset", map[string]string{"email": email}, nil)
}

func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := req.Validate(); err != nil {
		return wrapValidation(err)
	}
	return s.do(ctx, http.MethodPost, "/reset-password", req, nil)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return wrapValidation(goerrors.New("verification token is required", goerrors.CategoryValidation))
	}
	return s.do(ctx, http.MethodPost, "/verify-email", map[string]string{"token": token}, nil)
}

func (s *Service) ResendVerification(ctx context.Context, email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return wrapValidation(err)
	}
	return s.do(ctx, http.MethodPost, "/resend-verification", map[string]string{"email": email}, nil)
}

// ResendEmailVerification targets the OTP based email verification flow; the
// backend exposes it separately from /resend-verification.
func (s *Service) ResendEmailVerification(ctx context.Context, email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return wrapValidation(err)
	}
	return s.do(ctx, http.MethodPost, "/resend-email-verification", map[string]string{"email": email}, nil)
}

func (s *Service) VerifyEmailOTP(ctx context.Context, email, code string) error {
	if err := validation.Validate(code, validation.Required); err != nil {
		return wrapValidation(err)
	}
	body := map[string]string{"email": email, "code": code}
	return s.do(ctx, http.MethodPost, "/verify-email-otp", body, nil)
}

func (s *Service) SendOTP(ctx context.Context, req SendOTPRequest) error {
	if err := req.Validate(); err != nil {
		return wrapValidation(err)
	}

	if req.Phone != "" {
		normalized, err := NormalizePhone(req.Phone, DefaultPhoneRegion)
		if err != nil {
			return err
		}
		req.Phone = normalized
	}
	return s.do(ctx, http.MethodPost, "/send-otp", req, nil)
}

// VerifyOTP submits the second factor for a pending login challenge and
// promotes it to a full credential grant.
func (s *Service) VerifyOTP(ctx context.Context, userID, code string) (*AuthPayload, error) {
	if userID == "" || code == "" {
		return nil, wrapValidation(goerrors.New("user id and code are required", goerrors.CategoryValidation))
	}

	body := map[string]string{"userId": userID, "code": code}
	payload := &AuthPayload{}
	if err := s.do(ctx, http.MethodPost, "/verify-otp", body, payload); err != nil {
		return nil, err
	}

	if payload.User == nil || payload.Tokens == nil {
		return nil, FromWireError(http.StatusBadGateway, "", "otp response missing credentials", nil)
	}
	return payload, nil
}

func (s *Service) Logout(ctx context.Context) error {
	return s.do(ctx, http.MethodPost, "/logout", nil, nil)
}

// LogoutAll revokes every session for the account, this device included.
func (s *Service) LogoutAll(ctx context.Context) error {
	return s.do(ctx, http.MethodPost, "/logout-all", nil, nil)
}

// do issues a request and maps the response envelope. Transport failures
// always become NETWORK_ERROR; server errors keep their code when present.
func (s *Service) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request payload")
		}
		body = bytes.NewReader(raw)
	}

	url := strings.TrimRight(s.cfg.GetBaseURL(), "/") + apiPrefix + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.deviceID != "" {
		req.Header.Set("X-Device-ID", s.deviceID)
	}

	res, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("request failed before a response arrived", "method", method, "path", path, "error", err)
		return NewNetworkError(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return NewNetworkError(err)
	}

	env := &envelope{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, env); err != nil {
			if res.StatusCode >= 400 {
				return FromWireError(res.StatusCode, "", "", nil)
			}
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode response envelope")
		}
	}

	if res.StatusCode >= 400 || (len(raw) > 0 && !env.Success) {
		wireErr := FromWireError(res.StatusCode, env.Code, env.Message, env.Details)
		s.logger.Debug("auth api error",
			"method", method,
			"path", path,
			"status", res.StatusCode,
			"code", wireErr.TextCode,
		)
		return wireErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode response data")
		}
	}
	return nil
}

func wrapValidation(err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid request payload").
		WithTextCode(TextCodeValidationError)
}
