package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stagepass/identity-service/internal/domain"
	"github.com/stagepass/identity-service/pkg/database"
)

// oauthLinkRepository implements OAuthLinkRepository interface
type oauthLinkRepository struct {
	db *database.Postgres
}

// NewOAuthLinkRepository creates a new OAuth link repository
func NewOAuthLinkRepository(db *database.Postgres) OAuthLinkRepository {
	return &oauthLinkRepository{db: db}
}

// Create creates a new OAuth link
func (r *oauthLinkRepository) Create(ctx context.Context, link *domain.OAuthLink) error {
	query := `
		INSERT INTO oauth_links (id, user_id, provider, provider_user_id, email,
			access_token, refresh_token, token_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	// Generate UUID if not provided
	if link.ID == "" {
		link.ID = uuid.New().String()
	}

	now := time.Now()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	if link.UpdatedAt.IsZero() {
		link.UpdatedAt = now
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		link.ID,
		link.UserID,
		link.Provider,
		link.ProviderUserID,
		link.Email,
		nullString(link.AccessToken),
		nullString(link.RefreshToken),
		link.TokenExpiresAt,
		link.CreatedAt,
		link.UpdatedAt,
	)

	if err != nil {
		// The unique index on (provider, provider_user_id) is the final
		// arbiter against concurrent callbacks creating duplicate links
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("oauth link already exists: %w", ErrDuplicateOAuthLink)
			}
		}
		return fmt.Errorf("failed to create oauth link: %w", err)
	}

	return nil
}

func scanOAuthLink(scan func(dest ...any) error) (*domain.OAuthLink, error) {
	link := &domain.OAuthLink{}
	var (
		email          sql.NullString
		accessToken    sql.NullString
		refreshToken   sql.NullString
		tokenExpiresAt sql.NullTime
	)

	err := scan(
		&link.ID,
		&link.UserID,
		&link.Provider,
		&link.ProviderUserID,
		&email,
		&accessToken,
		&refreshToken,
		&tokenExpiresAt,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if email.Valid {
		link.Email = &email.String
	}
	link.AccessToken = accessToken.String
	link.RefreshToken = refreshToken.String
	if tokenExpiresAt.Valid {
		link.TokenExpiresAt = &tokenExpiresAt.Time
	}

	return link, nil
}

// GetByProviderIdentity retrieves an OAuth link by provider and external identity
func (r *oauthLinkRepository) GetByProviderIdentity(ctx context.Context, provider, providerUserID string) (*domain.OAuthLink, error) {
	query := `
		SELECT id, user_id, provider, provider_user_id, email,
			access_token, refresh_token, token_expires_at, created_at, updated_at
		FROM oauth_links
		WHERE provider = $1 AND provider_user_id = $2
	`

	row := r.db.DB.QueryRowContext(ctx, query, provider, providerUserID)
	link, err := scanOAuthLink(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("oauth link not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get oauth link: %w", err)
	}

	return link, nil
}

// GetByUserID retrieves all OAuth links for a user
func (r *oauthLinkRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.OAuthLink, error) {
	query := `
		SELECT id, user_id, provider, provider_user_id, email,
			access_token, refresh_token, token_expires_at, created_at, updated_at
		FROM oauth_links
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth links by user id: %w", err)
	}
	defer rows.Close()

	var links []*domain.OAuthLink
	for rows.Next() {
		link, err := scanOAuthLink(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan oauth link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate oauth links: %w", err)
	}

	return links, nil
}

// UpdateTokens refreshes the stored provider tokens on a link
func (r *oauthLinkRepository) UpdateTokens(ctx context.Context, linkID, accessToken, refreshToken string, tokenExpiresAt *time.Time) error {
	query := `
		UPDATE oauth_links
		SET access_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		linkID,
		nullString(accessToken),
		nullString(refreshToken),
		tokenExpiresAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update oauth link tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("oauth link with id %s not found: %w", linkID, ErrNotFound)
	}

	return nil
}

// Delete deletes an OAuth link by ID
func (r *oauthLinkRepository) Delete(ctx context.Context, linkID string) error {
	query := `DELETE FROM oauth_links WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, linkID)
	if err != nil {
		return fmt.Errorf("failed to delete oauth link: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("oauth link with id %s not found: %w", linkID, ErrNotFound)
	}

	return nil
}
