// Package auth implements the login and registration protocol on top of the
// gateway and the session store.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/KaramelBytes/docqa-cli/internal/gateway"
	"github.com/KaramelBytes/docqa-cli/internal/session"
	"github.com/go-playground/validator/v10"
)

// MinPasswordLength matches the backend's registration rule.
const MinPasswordLength = 6

// Doer is the part of the gateway auth needs.
type Doer interface {
	Do(ctx context.Context, call gateway.Call, out any) error
}

// RegisterInput is what the registration screen collects.
type RegisterInput struct {
	Username        string `json:"username" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"-"`
}

type loginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	User        session.User `json:"user"`
}

// Profile is the /auth/profile payload.
type Profile struct {
	session.User
	CreatedAt gateway.Time `json:"created_at"`
}

// Service runs auth calls and owns the session transitions they cause.
type Service struct {
	gw       Doer
	store    *session.Store
	validate *validator.Validate
}

func NewService(gw Doer, store *session.Store) *Service {
	return &Service{gw: gw, store: store, validate: validator.New()}
}

// Register validates locally, then creates the account and stores the session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (session.Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Password != in.ConfirmPassword {
		return session.Session{}, gateway.Invalid("password", "Passwords do not match")
	}
	if len(in.Password) < MinPasswordLength {
		return session.Session{}, gateway.Invalid("password", "Password must be at least 6 characters")
	}
	if err := s.check(in); err != nil {
		return session.Session{}, err
	}
	var out tokenResponse
	call := gateway.Call{Method: http.MethodPost, Path: "/auth/register", Body: in, Fallback: "Registration failed", Anonymous: true}
	if err := s.gw.Do(ctx, call, &out); err != nil {
		return session.Session{}, err
	}
	return s.establish(out)
}

// Login validates locally, authenticates and stores the session.
func (s *Service) Login(ctx context.Context, email, password string) (session.Session, error) {
	in := loginInput{Email: strings.ToLower(strings.TrimSpace(email)), Password: password}
	if err := s.check(in); err != nil {
		return session.Session{}, err
	}
	var out tokenResponse
	call := gateway.Call{Method: http.MethodPost, Path: "/auth/login", Body: in, Fallback: "Login failed", Anonymous: true}
	if err := s.gw.Do(ctx, call, &out); err != nil {
		return session.Session{}, err
	}
	return s.establish(out)
}

// Logout ends the session locally.
func (s *Service) Logout() error {
	return s.store.ClearSession()
}

// Profile fetches the current user's profile from the backend.
func (s *Service) Profile(ctx context.Context) (*Profile, error) {
	var out struct {
		User Profile `json:"user"`
	}
	if err := s.gw.Do(ctx, gateway.Call{Method: http.MethodGet, Path: "/auth/profile", Fallback: "Failed to get profile"}, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (s *Service) establish(out tokenResponse) (session.Session, error) {
	if out.AccessToken == "" {
		return session.Session{}, errors.New("backend returned no access token")
	}
	if err := s.store.SetSession(out.AccessToken, out.User); err != nil {
		return session.Session{}, err
	}
	return session.Session{Token: out.AccessToken, User: out.User}, nil
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return gateway.Invalid("", err.Error())
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return gateway.Invalid(field, "Please fill in all fields")
	case "email":
		return gateway.Invalid(field, "Invalid email format")
	default:
		return gateway.Invalid(field, fe.Error())
	}
}
