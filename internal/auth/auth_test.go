package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/fuegovibe/backend/internal/model"
	"github.com/fuegovibe/backend/internal/store"
)

func newTestService(adminEmails ...string) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store.NewMemory(), []byte("test-secret"), adminEmails, log)
}

func TestSignUpAndSignIn(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	user, token, err := s.SignUp(ctx, "Alice@Example.com", "hunter22")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if user.Role != model.RoleUser {
		t.Errorf("role = %q, want user", user.Role)
	}
	if token == "" {
		t.Error("no token issued")
	}

	uid, err := s.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if uid != user.ID {
		t.Errorf("token subject = %q, want %q", uid, user.ID)
	}

	signedIn, token2, err := s.SignIn(ctx, "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if signedIn.ID != user.ID || token2 == "" {
		t.Errorf("sign-in returned %+v", signedIn)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	if _, _, err := s.SignUp(ctx, "bob@example.com", "correct"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if _, _, err := s.SignIn(ctx, "bob@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := s.SignIn(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: %v, want ErrInvalidCredentials", err)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	if _, _, err := s.SignUp(ctx, "carol@example.com", "pw"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if _, _, err := s.SignUp(ctx, "carol@example.com", "pw2"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate signup: %v, want ErrEmailTaken", err)
	}
}

func TestAdminRoleBootstrap(t *testing.T) {
	s := newTestService("root@example.com")
	ctx := context.Background()

	admin, _, err := s.SignUp(ctx, "ROOT@example.com", "pw")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if !admin.IsAdmin() {
		t.Errorf("configured admin email got role %q", admin.Role)
	}

	regular, _, err := s.SignUp(ctx, "pleb@example.com", "pw")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if regular.IsAdmin() {
		t.Error("regular email got admin role")
	}
}

func TestEnsureProfileProvisionsOnce(t *testing.T) {
	s := newTestService("boss@example.com")
	ctx := context.Background()

	first, err := s.EnsureProfile(ctx, "ext-uid-1", "boss@example.com")
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	if first.ID != "ext-uid-1" || !first.IsAdmin() {
		t.Errorf("provisioned profile = %+v", first)
	}

	again, err := s.EnsureProfile(ctx, "ext-uid-1", "boss@example.com")
	if err != nil {
		t.Fatalf("EnsureProfile second call: %v", err)
	}
	if !again.CreatedAt.Equal(first.CreatedAt) {
		t.Error("second EnsureProfile re-provisioned the profile")
	}

	got, err := s.GetProfile(ctx, "ext-uid-1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Email != "boss@example.com" {
		t.Errorf("profile email = %q", got.Email)
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	s := newTestService()
	if _, err := s.VerifyToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: %v, want ErrInvalidToken", err)
	}

	// A token signed with a different secret must not verify.
	other := newTestService()
	otherSecret := NewService(store.NewMemory(), []byte("other-secret"), nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, token, err := otherSecret.SignUp(context.Background(), "eve@example.com", "pw")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if _, err := other.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("cross-secret token: %v, want ErrInvalidToken", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	if _, _, err := s.SignUp(ctx, "", "pw"); err == nil {
		t.Error("empty email accepted")
	}
	if _, _, err := s.SignUp(ctx, "dave@example.com", ""); err == nil {
		t.Error("empty password accepted")
	}
	if _, _, err := s.SignUp(ctx, "not-an-email", "pw"); err == nil {
		t.Error("malformed email accepted")
	}
}
