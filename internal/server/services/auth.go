// Package services contains the server-side business logic. This file
// implements AuthService, the facade the transport layer calls for
// registration, login, token refresh (rotation with reuse detection),
// logout, and password changes.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voyagerhq/auth-service/internal/common"
	"github.com/voyagerhq/auth-service/internal/dbx"
	"github.com/voyagerhq/auth-service/internal/logging"
	"github.com/voyagerhq/auth-service/internal/server/config"
	"github.com/voyagerhq/auth-service/internal/server/metrics"
	"github.com/voyagerhq/auth-service/internal/server/models"
	"github.com/voyagerhq/auth-service/internal/server/password"
	"github.com/voyagerhq/auth-service/internal/server/repositories/repomanager"
	"github.com/voyagerhq/auth-service/internal/server/token"
	"github.com/voyagerhq/auth-service/internal/shared"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterResult carries the created user and the advisory breach count.
// What to do about a nonzero count (warn the user, require a change) is the
// caller's policy, not this core's.
type RegisterResult struct {
	User        *models.User
	BreachCount int
}

// OAuthIdentity is the verified tuple an OAuth strategy adapter produces
// after completing a provider handshake.
type OAuthIdentity struct {
	Provider    string
	ProviderID  string
	Email       string
	DisplayName string
	AvatarURL   string
}

// EmailSender delivers verification links. Implemented outside this core.
type EmailSender interface {
	SendVerification(ctx context.Context, email, rawToken string) error
}

// BreachChecker reports how often a password appears in a breach corpus.
// Implementations fail open and return 0 on any upstream trouble.
type BreachChecker interface {
	Count(ctx context.Context, password string) int
}

// AuthService composes the user directory, password hashing, breach
// checking, token codec, blacklist, and refresh-token store into the
// operations a caller invokes.
type AuthService struct {
	db        *sql.DB
	rm        repomanager.RepositoryManager
	hasher    *password.Hasher
	breach    BreachChecker
	codec     *token.Codec
	blacklist token.Blacklist
	mailer    EmailSender
	metrics   *metrics.AuthMetrics
	logger    logging.Logger

	refreshTokenTTL      time.Duration
	verificationTokenTTL time.Duration
	maxSessionsPerUser   int
}

// AuthServiceDeps groups the collaborators NewAuthService needs beyond the
// database and repositories.
type AuthServiceDeps struct {
	Hasher    *password.Hasher
	Breach    BreachChecker
	Codec     *token.Codec
	Blacklist token.Blacklist
	Mailer    EmailSender
	Metrics   *metrics.AuthMetrics
	Logger    logging.Logger
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(db *sql.DB, rm repomanager.RepositoryManager, cfg *config.Config, deps AuthServiceDeps) *AuthService {
	return &AuthService{
		db:                   db,
		rm:                   rm,
		hasher:               deps.Hasher,
		breach:               deps.Breach,
		codec:                deps.Codec,
		blacklist:            deps.Blacklist,
		mailer:               deps.Mailer,
		metrics:              deps.Metrics,
		logger:               deps.Logger.With("component", "auth_service"),
		refreshTokenTTL:      cfg.Auth.RefreshTokenTTL,
		verificationTokenTTL: cfg.Auth.VerificationTokenTTL,
		maxSessionsPerUser:   cfg.Auth.MaxSessionsPerUser,
	}
}

// Register creates a local account. No login tokens are issued: email
// verification gates first use. The breach check is advisory and never
// blocks registration.
func (s *AuthService) Register(ctx context.Context, email, plainPassword, displayName string) (*RegisterResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := s.rm.Users(s.db).FindByEmail(ctx, email); err == nil {
		return nil, common.ErrAccountConflict
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("looking up email: %w", err)
	}

	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	breachCount := s.breach.Count(ctx, plainPassword)
	if breachCount > 0 {
		s.logger.Warn(ctx, "registration password found in breach corpus", "count", breachCount)
	}

	user := &models.User{
		UUID:         uuid.New(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         models.RoleUser,
	}

	var rawVerification string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.rm.Users(tx).Create(ctx, user)
		if err != nil {
			return err
		}
		user = created

		rawVerification, err = s.rm.Verifications(tx).Create(ctx, user.ID, s.verificationTokenTTL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	// Delivery failure is not a registration failure: the user exists and
	// can request a fresh link.
	if err := s.mailer.SendVerification(ctx, user.Email, rawVerification); err != nil {
		s.logger.Error(ctx, "sending verification email failed", "user_id", user.ID, "error", err)
	}

	s.metrics.Registrations.Inc()
	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return &RegisterResult{User: user, BreachCount: breachCount}, nil
}

// ConfirmEmail consumes a verification token and marks the email verified.
func (s *AuthService) ConfirmEmail(ctx context.Context, rawToken string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		vt, err := s.rm.Verifications(tx).Consume(ctx, shared.HashToken(rawToken))
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrTokenInvalid
			}
			return err
		}
		return s.rm.Users(tx).SetEmailVerified(ctx, vt.UserID)
	})
}

// Login verifies credentials and mints a token pair with a fresh rotation
// family. Unknown email, wrong password, and password-less accounts all cost
// one bcrypt comparison and all return the same error.
func (s *AuthService) Login(ctx context.Context, email, plainPassword string) (*TokenPair, error) {
	user, err := s.rm.Users(s.db).FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.DummyVerify(plainPassword)
			s.metrics.Logins.WithLabelValues("failure").Inc()
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up email: %w", err)
	}

	if !user.HasPassword() {
		s.hasher.DummyVerify(plainPassword)
		s.metrics.Logins.WithLabelValues("failure").Inc()
		return nil, common.ErrInvalidCredentials
	}
	if !s.hasher.Verify(plainPassword, user.PasswordHash) {
		s.metrics.Logins.WithLabelValues("failure").Inc()
		return nil, common.ErrInvalidCredentials
	}

	if err := s.rm.Users(s.db).TouchLastSeen(ctx, user.ID); err != nil {
		s.logger.Warn(ctx, "touching last_seen failed", "user_id", user.ID, "error", err)
	}

	pair, err := s.issueTokenPair(ctx, user, "")
	if err != nil {
		return nil, err
	}

	s.metrics.Logins.WithLabelValues("success").Inc()
	return pair, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a
// successor is created in the same family, atomically. Presenting an
// already-revoked token burns its whole family (reuse detection). The caller
// only ever sees common.ErrRefreshInvalid; the distinction between expired,
// unknown, and reused lives in the logs.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken string) (*TokenPair, error) {
	hash := shared.HashToken(rawRefreshToken)

	var pair *TokenPair
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.RefreshTokens(tx)

		consumed, err := repo.Consume(ctx, hash)
		if err != nil {
			if !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			// No live row. Find out why, inside the same transaction, and
			// commit any family revocation even though the call fails.
			return s.handleRotationMiss(ctx, repo, hash)
		}

		user, err := s.rm.Users(tx).FindByID(ctx, consumed.UserID)
		if err != nil {
			return err
		}

		newRaw, err := repo.Create(ctx, consumed.UserID, consumed.FamilyID, s.refreshTokenTTL)
		if err != nil {
			return err
		}

		access, err := s.codec.Issue(user)
		if err != nil {
			return err
		}

		pair = &TokenPair{AccessToken: access, RefreshToken: newRaw}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}
	if pair == nil {
		return nil, common.ErrRefreshInvalid
	}

	s.metrics.Rotations.Inc()
	return pair, nil
}

// handleRotationMiss classifies a failed consume. Absent and expired tokens
// have no side effect; a revoked token is the reuse signal and revokes every
// live member of its family. Always returns nil so the transaction commits.
func (s *AuthService) handleRotationMiss(ctx context.Context, repo refreshTokenConsumer, hash string) error {
	probe, err := repo.Find(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}

	if probe.Revoked() {
		n, err := repo.RevokeFamily(ctx, probe.FamilyID)
		if err != nil {
			return err
		}
		s.metrics.ReuseDetected.Inc()
		s.logger.Warn(ctx, "refresh token reuse detected, family revoked",
			"family_id", probe.FamilyID, "user_id", probe.UserID, "tokens_revoked", n)
	}
	return nil
}

// refreshTokenConsumer is the slice of refreshtokens.Repository the miss
// handler touches.
type refreshTokenConsumer interface {
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeFamily(ctx context.Context, familyID string) (int64, error)
}

// Logout blacklists the access token's jti and revokes the presented refresh
// token. Only that token, not its family: a normal logout is not theft.
// Calling it twice with the same tokens is fine.
func (s *AuthService) Logout(ctx context.Context, accessToken, rawRefreshToken string) error {
	if err := s.blacklist.Add(ctx, accessToken); err != nil {
		s.logger.Warn(ctx, "blacklisting access token failed", "error", err)
	}

	if err := s.rm.RefreshTokens(s.db).Revoke(ctx, shared.HashToken(rawRefreshToken)); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}

	s.metrics.Logouts.Inc()
	return nil
}

// LogoutAll revokes every live refresh token for the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) error {
	n, err := s.rm.RefreshTokens(s.db).RevokeAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoking user tokens: %w", err)
	}
	s.logger.Info(ctx, "all sessions revoked", "user_id", userID, "tokens_revoked", n)
	return nil
}

// ChangePassword verifies the current password, stores the new hash, and
// invalidates every outstanding session.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	user, err := s.rm.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.DummyVerify(currentPassword)
			return common.ErrInvalidCredentials
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	if !user.HasPassword() {
		s.hasher.DummyVerify(currentPassword)
		return common.ErrInvalidCredentials
	}
	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return common.ErrInvalidCredentials
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.rm.Users(tx).SetPasswordHash(ctx, userID, newHash); err != nil {
			return err
		}
		_, err := s.rm.RefreshTokens(tx).RevokeAllForUser(ctx, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("changing password: %w", err)
	}

	s.logger.Info(ctx, "password changed, sessions revoked", "user_id", userID)
	return nil
}

// OAuthLogin logs in (or creates) the user behind a verified provider
// identity. Email linking is deliberately conservative: a provider email
// matching an unverified local account is a conflict, not a merge, so an
// attacker cannot pre-register a victim's email and capture their OAuth
// login later.
func (s *AuthService) OAuthLogin(ctx context.Context, identity OAuthIdentity) (*TokenPair, error) {
	usersRepo := s.rm.Users(s.db)

	user, err := usersRepo.FindByProvider(ctx, identity.Provider, identity.ProviderID)
	switch {
	case err == nil:
		// Known identity.
	case errors.Is(err, common.ErrorNotFound):
		user, err = s.linkOrCreateByEmail(ctx, identity)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("looking up provider identity: %w", err)
	}

	if err := usersRepo.TouchLastSeen(ctx, user.ID); err != nil {
		s.logger.Warn(ctx, "touching last_seen failed", "user_id", user.ID, "error", err)
	}

	return s.issueTokenPair(ctx, user, "")
}

func (s *AuthService) linkOrCreateByEmail(ctx context.Context, identity OAuthIdentity) (*models.User, error) {
	usersRepo := s.rm.Users(s.db)
	email := strings.ToLower(strings.TrimSpace(identity.Email))

	if email != "" {
		existing, err := usersRepo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			if !existing.EmailVerified {
				return nil, common.ErrAccountConflict
			}
			if err := usersRepo.LinkProvider(ctx, existing.ID, identity.Provider, identity.ProviderID); err != nil {
				return nil, fmt.Errorf("linking provider: %w", err)
			}
			existing.AuthProvider = identity.Provider
			existing.ProviderID = identity.ProviderID
			return existing, nil
		case !errors.Is(err, common.ErrorNotFound):
			return nil, fmt.Errorf("looking up email: %w", err)
		}
	}

	// Provider-asserted emails are trusted, so the new account starts
	// verified and carries no password hash.
	user := &models.User{
		UUID:          uuid.New(),
		Email:         email,
		DisplayName:   identity.DisplayName,
		Role:          models.RoleUser,
		AuthProvider:  identity.Provider,
		ProviderID:    identity.ProviderID,
		EmailVerified: true,
	}

	created, err := usersRepo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("creating oauth user: %w", err)
	}
	s.logger.Info(ctx, "user created via oauth", "user_id", created.ID, "provider", identity.Provider)
	return created, nil
}

// Authenticate verifies an access token and returns its claims. Thin
// passthrough for transport middleware.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*token.Claims, error) {
	return s.codec.Verify(ctx, accessToken)
}

// issueTokenPair mints an access token and a refresh token. An empty
// familyID starts a new family (login); rotation passes the family forward.
// Creation and the session-cap eviction share one transaction.
func (s *AuthService) issueTokenPair(ctx context.Context, user *models.User, familyID string) (*TokenPair, error) {
	access, err := s.codec.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	var refresh string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.RefreshTokens(tx)

		refresh, err = repo.Create(ctx, user.ID, familyID, s.refreshTokenTTL)
		if err != nil {
			return err
		}

		evicted, err := repo.EnforceSessionLimit(ctx, user.ID, s.maxSessionsPerUser)
		if err != nil {
			return err
		}
		if evicted > 0 {
			s.logger.Info(ctx, "session cap enforced", "user_id", user.ID, "evicted", evicted)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
