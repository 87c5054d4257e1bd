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

const userColumns = `id, email, password_hash, role, is_email_verified,
		verification_code_hash, verification_code_expires_at,
		reset_code_hash, reset_code_expires_at, last_code_request_at,
		last_login_at, created_at, updated_at`

// userRepository implements UserRepository interface
type userRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.Postgres) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, role, is_email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	// Generate UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		user.ID,
		user.Email,
		nullString(user.PasswordHash),
		string(user.Role),
		user.IsEmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		// The unique index is the final arbiter against a create race
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("user with email %s already exists: %w", user.Email, ErrDuplicateEmail)
			}
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *userRepository) scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	var (
		passwordHash         sql.NullString
		role                 string
		verificationCodeHash sql.NullString
		verificationExpires  sql.NullTime
		resetCodeHash        sql.NullString
		resetExpires         sql.NullTime
		lastCodeRequestAt    sql.NullTime
		lastLoginAt          sql.NullTime
	)

	err := row.Scan(
		&user.ID,
		&user.Email,
		&passwordHash,
		&role,
		&user.IsEmailVerified,
		&verificationCodeHash,
		&verificationExpires,
		&resetCodeHash,
		&resetExpires,
		&lastCodeRequestAt,
		&lastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Role = domain.Role(role)
	user.PasswordHash = passwordHash.String
	user.VerificationCodeHash = verificationCodeHash.String
	user.ResetCodeHash = resetCodeHash.String
	if verificationExpires.Valid {
		user.VerificationCodeExpiresAt = &verificationExpires.Time
	}
	if resetExpires.Valid {
		user.ResetCodeExpiresAt = &resetExpires.Time
	}
	if lastCodeRequestAt.Valid {
		user.LastCodeRequestAt = &lastCodeRequestAt.Time
	}
	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}

	return user, nil
}

// GetByEmail retrieves a user by email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)

	user, err := r.scanUser(r.db.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with email %s not found: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	user, err := r.scanUser(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return user, nil
}

// GetByOAuthIdentity retrieves a user owning the given provider identity
func (r *userRepository) GetByOAuthIdentity(ctx context.Context, provider, providerUserID string) (*domain.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users
		WHERE id = (
			SELECT user_id FROM oauth_links
			WHERE provider = $1 AND provider_user_id = $2
		)`, userColumns)

	user, err := r.scanUser(r.db.DB.QueryRowContext(ctx, query, provider, providerUserID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user for %s identity %s not found: %w", provider, providerUserID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by oauth identity: %w", err)
	}

	return user, nil
}

// Update updates an existing user
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET email = $2, password_hash = $3, role = $4, is_email_verified = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		user.ID,
		user.Email,
		nullString(user.PasswordHash),
		string(user.Role),
		user.IsEmailVerified,
		time.Now(),
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("user with email %s already exists: %w", user.Email, ErrDuplicateEmail)
			}
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return r.requireRow(result, user.ID)
}

// UpdatePassword replaces the password hash for a user
func (r *userRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, userID, passwordHash, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return r.requireRow(result, userID)
}

// UpdateRole changes the role of a user
func (r *userRepository) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	query := `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, userID, string(role), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	return r.requireRow(result, userID)
}

// UpdateLastLogin updates the last login timestamp for a user
func (r *userRepository) UpdateLastLogin(ctx context.Context, userID string) error {
	query := `UPDATE users SET last_login_at = $1 WHERE id = $2`

	result, err := r.db.DB.ExecContext(ctx, query, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return r.requireRow(result, userID)
}

// Delete removes a user; oauth links and refresh tokens cascade
func (r *userRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM users WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return r.requireRow(result, userID)
}

// ClaimCode stores a code hash and expiry in one conditional update. The
// WHERE clause on last_code_request_at makes concurrent claims lose cleanly
// instead of both issuing codes.
func (r *userRepository) ClaimCode(ctx context.Context, userID string, flow domain.FlowKind, codeHash string, expiresAt, cutoff time.Time) error {
	var query string
	switch flow {
	case domain.FlowVerification:
		query = `
			UPDATE users
			SET verification_code_hash = $2, verification_code_expires_at = $3,
			    last_code_request_at = $4, updated_at = $4
			WHERE id = $1 AND (last_code_request_at IS NULL OR last_code_request_at <= $5)
		`
	case domain.FlowReset:
		query = `
			UPDATE users
			SET reset_code_hash = $2, reset_code_expires_at = $3,
			    last_code_request_at = $4, updated_at = $4
			WHERE id = $1 AND (last_code_request_at IS NULL OR last_code_request_at <= $5)
		`
	default:
		return fmt.Errorf("unknown flow kind %q", flow)
	}

	result, err := r.db.DB.ExecContext(ctx, query, userID, codeHash, expiresAt, time.Now(), cutoff)
	if err != nil {
		return fmt.Errorf("failed to claim code issuance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("code issuance for user %s rejected: %w", userID, ErrCooldownActive)
	}

	return nil
}

// ClearVerificationCode clears the verification code fields exactly once
func (r *userRepository) ClearVerificationCode(ctx context.Context, userID string, markVerified bool) error {
	query := `
		UPDATE users
		SET verification_code_hash = NULL, verification_code_expires_at = NULL,
		    is_email_verified = (is_email_verified OR $2), updated_at = $3
		WHERE id = $1 AND verification_code_hash IS NOT NULL
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, markVerified, time.Now())
	if err != nil {
		return fmt.Errorf("failed to clear verification code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no verification code on record for user %s: %w", userID, ErrNoActiveCode)
	}

	return nil
}

// ClearResetCode clears the reset code fields exactly once
func (r *userRepository) ClearResetCode(ctx context.Context, userID string) error {
	query := `
		UPDATE users
		SET reset_code_hash = NULL, reset_code_expires_at = NULL, updated_at = $2
		WHERE id = $1 AND reset_code_hash IS NOT NULL
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to clear reset code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no reset code on record for user %s: %w", userID, ErrNoActiveCode)
	}

	return nil
}

func (r *userRepository) requireRow(result sql.Result, userID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user with id %s not found: %w", userID, ErrNotFound)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
