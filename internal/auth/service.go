package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Service authenticates applicants and staff against the applicants table
// and exchanges credentials for bearer tokens.
type Service struct {
	db     *sql.DB
	tokens *TokenIssuer
	now    func() time.Time
}

func NewService(db *sql.DB, tokens *TokenIssuer) *Service {
	return &Service{
		db:     db,
		tokens: tokens,
		now:    time.Now,
	}
}

// Authenticate verifies an email/password pair and issues a token. Lookup
// misses and password mismatches are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	var (
		user     User
		hash     string
		isActive bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, role, password_hash, is_active
		FROM applicants
		WHERE lower(email) = $1
	`, email).Scan(&user.ID, &user.Email, &user.FullName, &user.Role, &hash, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("load account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if !isActive {
		return nil, "", ErrForbidden
	}

	token, err := s.tokens.Issue(&user, s.now())
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return &user, token, nil
}

// GetUser loads the identity behind a validated token subject.
func (s *Service) GetUser(ctx context.Context, userID int64) (*User, error) {
	var (
		user     User
		isActive bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, role, is_active
		FROM applicants
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.FullName, &user.Role, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !isActive {
		return nil, ErrForbidden
	}
	return &user, nil
}

// HashPassword is used by seeding and account provisioning.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
