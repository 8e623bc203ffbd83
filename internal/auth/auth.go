// Package auth implements the identity and profile service: email/password
// accounts, JWT bearer tokens, and profile documents in the "users"
// collection with role bootstrapping from a configured admin list.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fuegovibe/backend/internal/model"
	"github.com/fuegovibe/backend/internal/store"
)

// UsersCollection is the name of the backing document collection.
const UsersCollection = "users"

// ErrInvalidCredentials is returned when email or password does not match.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrEmailTaken is returned when signing up with an existing email.
var ErrEmailTaken = errors.New("an account with this email already exists")

// ErrInvalidToken is returned for expired or malformed bearer tokens.
var ErrInvalidToken = errors.New("invalid token")

const tokenTTL = 24 * time.Hour

// Service owns user credentials and profiles.
type Service struct {
	users       store.Collection
	secret      []byte
	adminEmails map[string]struct{}
	log         *slog.Logger
}

// NewService constructs the auth service. adminEmails lists the addresses
// whose profiles are provisioned with the admin role.
func NewService(st store.Store, secret []byte, adminEmails []string, log *slog.Logger) *Service {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			admins[e] = struct{}{}
		}
	}
	return &Service{
		users:       st.Collection(UsersCollection),
		secret:      secret,
		adminEmails: admins,
		log:         log,
	}
}

func (s *Service) roleFor(email string) model.Role {
	if _, ok := s.adminEmails[strings.ToLower(email)]; ok {
		return model.RoleAdmin
	}
	return model.RoleUser
}

// SignUp creates an account and its profile document, returning the profile
// and a bearer token.
func (s *Service) SignUp(ctx context.Context, email, password string) (model.AppUser, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return model.AppUser{}, "", errors.New("email and password are required")
	}
	if !strings.Contains(email, "@") {
		return model.AppUser{}, "", errors.New("email is not a valid address")
	}

	existing, err := s.users.Query(ctx, []store.Filter{store.Where("email", email)}, store.Order{})
	if err != nil {
		return model.AppUser{}, "", fmt.Errorf("check existing account: %w", err)
	}
	if len(existing) > 0 {
		return model.AppUser{}, "", ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.AppUser{}, "", fmt.Errorf("hash password: %w", err)
	}

	user := model.AppUser{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      s.roleFor(email),
		CreatedAt: time.Now().UTC(),
	}
	doc := encodeUser(user)
	doc["passwordHash"] = string(hash)
	if err := s.users.Set(ctx, user.ID, doc); err != nil {
		return model.AppUser{}, "", fmt.Errorf("create user profile: %w", err)
	}
	s.log.Info("user created", "uid", user.ID, "role", user.Role)

	token, err := s.issueToken(user)
	if err != nil {
		return model.AppUser{}, "", err
	}
	return user, token, nil
}

// SignIn verifies credentials and returns the profile and a bearer token.
func (s *Service) SignIn(ctx context.Context, email, password string) (model.AppUser, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return model.AppUser{}, "", errors.New("email and password are required")
	}

	snaps, err := s.users.Query(ctx, []store.Filter{store.Where("email", email)}, store.Order{})
	if err != nil {
		return model.AppUser{}, "", fmt.Errorf("look up account: %w", err)
	}
	if len(snaps) == 0 {
		return model.AppUser{}, "", ErrInvalidCredentials
	}
	snap := snaps[0]

	hash, _ := snap.Data["passwordHash"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return model.AppUser{}, "", ErrInvalidCredentials
	}

	user := decodeUser(snap.Data, snap.ID)
	token, err := s.issueToken(user)
	if err != nil {
		return model.AppUser{}, "", err
	}
	return user, token, nil
}

// GetProfile returns the profile for uid, or store.ErrNotFound.
func (s *Service) GetProfile(ctx context.Context, uid string) (model.AppUser, error) {
	snap, err := s.users.Get(ctx, uid)
	if err != nil {
		return model.AppUser{}, err
	}
	return decodeUser(snap.Data, snap.ID), nil
}

// EnsureProfile returns the profile for uid, provisioning one on first
// sight: role user by default, admin when the email is in the configured
// admin set. Used when identity comes from an external provider.
func (s *Service) EnsureProfile(ctx context.Context, uid, email string) (model.AppUser, error) {
	snap, err := s.users.Get(ctx, uid)
	if err == nil {
		return decodeUser(snap.Data, snap.ID), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.AppUser{}, fmt.Errorf("fetch user profile: %w", err)
	}

	user := model.AppUser{
		ID:        uid,
		Email:     strings.ToLower(email),
		Role:      s.roleFor(email),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Set(ctx, uid, encodeUser(user)); err != nil {
		return model.AppUser{}, fmt.Errorf("create user profile: %w", err)
	}
	s.log.Info("user profile provisioned", "uid", uid, "role", user.Role)
	return user, nil
}

// issueToken signs a bearer token carrying the user's id and email.
func (s *Service) issueToken(user model.AppUser) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// VerifyToken validates a bearer token and returns the user id it carries.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	uid, _ := claims["sub"].(string)
	if uid == "" {
		return "", ErrInvalidToken
	}
	return uid, nil
}

func encodeUser(u model.AppUser) store.Document {
	return store.Document{
		"uid":       u.ID,
		"email":     u.Email,
		"role":      string(u.Role),
		"createdAt": u.CreatedAt,
	}
}

// decodeUser is tolerant of partial profile documents: a missing role falls
// back to the user role, mirroring the document defaults clients assume.
func decodeUser(doc store.Document, id string) model.AppUser {
	u := model.AppUser{ID: id, Role: model.RoleUser}
	if email, ok := doc["email"].(string); ok {
		u.Email = email
	}
	if role, ok := doc["role"].(string); ok && model.Role(role) == model.RoleAdmin {
		u.Role = model.RoleAdmin
	}
	if created, ok := doc["createdAt"].(time.Time); ok {
		u.CreatedAt = created
	} else {
		u.CreatedAt = time.Now().UTC()
	}
	return u
}
