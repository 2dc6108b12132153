// file: repository/token_repository.go

package repository

import (
	"book-club-api/logger"
	"book-club-api/model"
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrTokenAlreadyRotated signals that a rotation raced with (or replayed) an
// earlier rotation of the same credential: the revoked flag was already set
// when the compare-and-swap ran. Callers treat it as reuse detection.
var ErrTokenAlreadyRotated = errors.New("refresh token already rotated")

// ITokenRepository defines the contract for refresh token database operations.
type ITokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	Rotate(ctx context.Context, oldID uuid.UUID, next *model.RefreshToken) error
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeChain(ctx context.Context, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID int) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenRepository implements ITokenRepository on Postgres.
type TokenRepository struct {
	DB *sql.DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{DB: db}
}

// Create inserts a new refresh token record into the database.
func (r *TokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	log := logger.Log.WithFields(logrus.Fields{
		"user_id":    token.UserID,
		"expires_at": token.ExpiresAt,
	})
	log.Info("Executing query to create a new refresh token")

	query := `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, device_info, ip_address)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING issued_at`
	err := r.DB.QueryRowContext(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.DeviceInfo, token.IPAddress,
	).Scan(&token.IssuedAt)
	if err != nil {
		log.WithError(err).Error("Failed to execute create refresh token query")
		return err
	}
	return nil
}

// GetByTokenHash retrieves a refresh token by its hashed value. The row is
// returned regardless of its revoked state; revocation is the caller's check.
func (r *TokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	token := &model.RefreshToken{}
	query := `SELECT id, user_id, token_hash, issued_at, expires_at, revoked, replaced_by_id, device_info, ip_address
	          FROM refresh_tokens WHERE token_hash = $1`

	var replacedBy sql.NullString
	var deviceInfo, ipAddress sql.NullString
	err := r.DB.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.IssuedAt, &token.ExpiresAt,
		&token.Revoked, &replacedBy, &deviceInfo, &ipAddress,
	)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Log.WithError(err).Error("Failed to execute get refresh token by hash query")
		}
		return nil, err // Return sql.ErrNoRows if not found
	}
	if replacedBy.Valid {
		id, err := uuid.Parse(replacedBy.String)
		if err != nil {
			return nil, err
		}
		token.ReplacedByID = &id
	}
	token.DeviceInfo = deviceInfo.String
	token.IPAddress = ipAddress.String
	return token, nil
}

// Rotate revokes the old credential and inserts its successor in a single
// transaction. The UPDATE only matches rows whose revoked flag is still false,
// so two requests racing to rotate the same credential cannot both succeed:
// the loser sees zero rows and gets ErrTokenAlreadyRotated.
func (r *TokenRepository) Rotate(ctx context.Context, oldID uuid.UUID, next *model.RefreshToken) error {
	log := logger.Log.WithFields(logrus.Fields{
		"old_token_id": oldID,
		"new_token_id": next.ID,
		"user_id":      next.UserID,
	})
	log.Info("Executing transaction to rotate refresh token")

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insertQuery := `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, device_info, ip_address)
	                VALUES ($1, $2, $3, $4, $5, $6) RETURNING issued_at`
	err = tx.QueryRowContext(ctx, insertQuery,
		next.ID, next.UserID, next.TokenHash, next.ExpiresAt, next.DeviceInfo, next.IPAddress,
	).Scan(&next.IssuedAt)
	if err != nil {
		log.WithError(err).Error("Failed to insert successor refresh token")
		return err
	}

	updateQuery := `UPDATE refresh_tokens SET revoked = TRUE, replaced_by_id = $1 WHERE id = $2 AND revoked = FALSE`
	result, err := tx.ExecContext(ctx, updateQuery, next.ID, oldID)
	if err != nil {
		log.WithError(err).Error("Failed to revoke old refresh token")
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Someone rotated this credential first. The transaction rolls back,
		// so the successor row inserted above is discarded as well.
		log.Warn("Refresh token rotation conflict detected")
		return ErrTokenAlreadyRotated
	}

	return tx.Commit()
}

// Revoke marks a single credential revoked. Revoking an already-revoked
// token is not an error.
func (r *TokenRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	log := logger.Log.WithField("token_id", id)
	log.Info("Executing query to revoke refresh token")

	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1`
	if _, err := r.DB.ExecContext(ctx, query, id); err != nil {
		log.WithError(err).Error("Failed to execute revoke refresh token query")
		return err
	}
	return nil
}

// RevokeChain revokes every credential linked to the given one, walking the
// replaced_by_id references in both directions.
func (r *TokenRepository) RevokeChain(ctx context.Context, id uuid.UUID) error {
	log := logger.Log.WithField("token_id", id)
	log.Warn("Executing query to revoke entire refresh token chain")

	query := `
		WITH RECURSIVE successors AS (
			SELECT id, replaced_by_id FROM refresh_tokens WHERE id = $1
			UNION
			SELECT t.id, t.replaced_by_id FROM refresh_tokens t
			JOIN successors s ON t.id = s.replaced_by_id
		), predecessors AS (
			SELECT id, replaced_by_id FROM refresh_tokens WHERE id = $1
			UNION
			SELECT t.id, t.replaced_by_id FROM refresh_tokens t
			JOIN predecessors p ON t.replaced_by_id = p.id
		)
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE id IN (SELECT id FROM successors UNION SELECT id FROM predecessors)`

	if _, err := r.DB.ExecContext(ctx, query, id); err != nil {
		log.WithError(err).Error("Failed to execute revoke chain query")
		return err
	}
	return nil
}

// RevokeAllForUser revokes every active refresh token for a user.
// This is used for logging out from all sessions.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID int) error {
	log := logger.Log.WithField("user_id", userID)
	log.Info("Executing query to revoke all refresh tokens for a user")

	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.DB.ExecContext(ctx, query, userID); err != nil {
		log.WithError(err).Error("Failed to execute revoke all tokens query")
		return err
	}
	return nil
}

// DeleteExpired removes rows that can no longer participate in any rotation:
// expired tokens and revoked tokens older than thirty days. Intended for a
// periodic janitor job.
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM refresh_tokens
	          WHERE expires_at < now() OR (revoked = TRUE AND issued_at < now() - INTERVAL '30 days')`
	result, err := r.DB.ExecContext(ctx, query)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to execute delete expired tokens query")
		return 0, err
	}
	return result.RowsAffected()
}
