// file: service/auth_service.go

package service

import (
	"book-club-api/config"
	"book-club-api/logger"
	"book-club-api/model"
	"book-club-api/repository"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when the email/password pair does not match.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	// ErrEmailTaken is returned when registering with an email already in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken is returned when registering with a username already in use.
	ErrUsernameTaken = errors.New("username already registered")

	// The three session errors below are terminal: the client must fully
	// re-authenticate, never retry the refresh.

	// ErrSessionInvalid means the presented refresh token is unknown.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionCompromised means an already-rotated token was presented again.
	// The whole chain is revoked when this is detected.
	ErrSessionCompromised = errors.New("session compromised")
	// ErrSessionExpired means the refresh token outlived its validity window.
	ErrSessionExpired = errors.New("session expired")
)

// TokenPair bundles a freshly minted access token with its refresh credential.
// The raw refresh token leaves the server only through the HttpOnly cookie.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"-"`
	RefreshExpiresAt time.Time
}

// IAuthService defines the contract exposed to the HTTP layer.
type IAuthService interface {
	Register(ctx context.Context, req model.RegisterRequest, meta model.SessionMetadata) (*model.User, *TokenPair, error)
	Login(ctx context.Context, req model.LoginRequest, meta model.SessionMetadata) (*model.User, *TokenPair, error)
	Refresh(ctx context.Context, rawToken string, meta model.SessionMetadata) (*TokenPair, error)
	Logout(ctx context.Context, rawToken string) error
	LogoutAll(ctx context.Context, userID int) error
}

// AuthService owns the credential lifecycle: registration, login, refresh
// token rotation with replay detection, and revocation.
type AuthService struct {
	userRepo  repository.IUserRepository
	tokenRepo repository.ITokenRepository
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repository.IUserRepository, tokenRepo repository.ITokenRepository) *AuthService {
	return &AuthService{userRepo: userRepo, tokenRepo: tokenRepo}
}

func getJwtKey() []byte {
	return []byte(config.AppConfig.JWT.SecretKey)
}

// HashPassword hashes a plaintext password with bcrypt.
func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to hash password")
		return "", err
	}
	return string(bytes), nil
}

// CheckPasswordHash verifies a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateJWT mints a short-lived HS256 access token for the user.
func (s *AuthService) GenerateJWT(user *model.User) (string, error) {
	expirationTime := time.Now().Add(config.AppConfig.JWT.AccessTTL)

	claims := &model.AppClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(getJwtKey())
	if err != nil {
		logger.Log.WithError(err).WithField("email", user.Email).Error("Failed to sign JWT")
		return "", fmt.Errorf("failed to sign token string: %w", err)
	}

	return tokenString, nil
}

// generateRefreshToken returns a new opaque refresh token and its SHA-256 hex
// hash. Only the hash ever reaches storage.
func generateRefreshToken() (raw string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, HashToken(raw), nil
}

// HashToken computes the storage form of a raw refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Register creates a new user and opens a fresh session for it.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest, meta model.SessionMetadata) (*model.User, *TokenPair, error) {
	if _, err := s.userRepo.GetUserByEmail(req.Email); err == nil {
		return nil, nil, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, err
	}
	if _, err := s.userRepo.GetUserByUsername(req.Username); err == nil {
		return nil, nil, ErrUsernameTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, err
	}

	hashedPassword, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}

	user := &model.User{
		Username: req.Username,
		Email:    req.Email,
		Password: hashedPassword,
	}
	if err := s.userRepo.CreateUser(user); err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokenPair(ctx, user, meta)
	if err != nil {
		return nil, nil, err
	}

	logger.Log.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email}).Info("New user registered")
	return user, pair, nil
}

// Login verifies credentials and opens a new session (a new rotation chain).
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest, meta model.SessionMetadata) (*model.User, *TokenPair, error) {
	user, err := s.userRepo.GetUserByEmail(req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !s.CheckPasswordHash(req.Password, user.Password) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokenPair(ctx, user, meta)
	if err != nil {
		return nil, nil, err
	}

	logger.Log.WithField("user_id", user.ID).Info("User logged in")
	return user, pair, nil
}

// issueTokenPair mints an access token and the first link of a new refresh
// token chain.
func (s *AuthService) issueTokenPair(ctx context.Context, user *model.User, meta model.SessionMetadata) (*TokenPair, error) {
	accessToken, err := s.GenerateJWT(user)
	if err != nil {
		return nil, err
	}

	raw, hash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	token := &model.RefreshToken{
		ID:         uuid.New(),
		UserID:     user.ID,
		TokenHash:  hash,
		ExpiresAt:  time.Now().Add(config.AppConfig.Refresh.TTL),
		DeviceInfo: meta.DeviceInfo,
		IPAddress:  meta.IPAddress,
	}
	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     raw,
		RefreshExpiresAt: token.ExpiresAt,
	}, nil
}

// Refresh validates the presented refresh token and rotates it.
//
// Decision procedure:
//  1. unknown token            -> ErrSessionInvalid
//  2. revoked token            -> revoke the whole chain, ErrSessionCompromised
//  3. expired token            -> ErrSessionExpired
//  4. otherwise rotate; a rotation conflict is reuse too (step 2 applies)
func (s *AuthService) Refresh(ctx context.Context, rawToken string, meta model.SessionMetadata) (*TokenPair, error) {
	current, err := s.tokenRepo.GetByTokenHash(ctx, HashToken(rawToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	log := logger.Log.WithFields(logrus.Fields{"user_id": current.UserID, "token_id": current.ID})

	if current.Revoked {
		// An already-rotated token came back. Someone is replaying a stale
		// credential, so every link of this chain gets revoked.
		log.Warn("Refresh token reuse detected, revoking chain")
		if err := s.tokenRepo.RevokeChain(ctx, current.ID); err != nil {
			return nil, err
		}
		return nil, ErrSessionCompromised
	}

	if current.IsExpired() {
		return nil, ErrSessionExpired
	}

	user, err := s.userRepo.GetUserByID(current.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	accessToken, err := s.GenerateJWT(user)
	if err != nil {
		return nil, err
	}

	raw, hash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	next := &model.RefreshToken{
		ID:         uuid.New(),
		UserID:     user.ID,
		TokenHash:  hash,
		ExpiresAt:  time.Now().Add(config.AppConfig.Refresh.TTL),
		DeviceInfo: meta.DeviceInfo,
		IPAddress:  meta.IPAddress,
	}
	if err := s.tokenRepo.Rotate(ctx, current.ID, next); err != nil {
		if errors.Is(err, repository.ErrTokenAlreadyRotated) {
			log.Warn("Refresh token rotation conflict, revoking chain")
			if err := s.tokenRepo.RevokeChain(ctx, current.ID); err != nil {
				return nil, err
			}
			return nil, ErrSessionCompromised
		}
		return nil, err
	}

	log.WithField("new_token_id", next.ID).Info("Refresh token rotated")
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     raw,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// Logout revokes the presented refresh credential. Unknown or already-revoked
// tokens are a no-op so logout stays idempotent.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	current, err := s.tokenRepo.GetByTokenHash(ctx, HashToken(rawToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if err := s.tokenRepo.Revoke(ctx, current.ID); err != nil {
		return err
	}
	logger.Log.WithField("user_id", current.UserID).Info("User logged out")
	return nil
}

// LogoutAll revokes every active session of the user (all devices).
func (s *AuthService) LogoutAll(ctx context.Context, userID int) error {
	return s.tokenRepo.RevokeAllForUser(ctx, userID)
}
