package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sba-transport-api/internal/models"
)

const userColumns = `id, email, password_hash, full_name, role, guardian_id, active, last_login, created_at, updated_at`

// UserRepository reads application accounts for authentication and RBAC.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByEmail fetches a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE email = $1"
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID fetches a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = $1"
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin stamps the login timestamp.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1", id, at); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// ListActiveAdmins returns active administrator accounts, used to fan out
// workflow notifications.
func (r *UserRepository) ListActiveAdmins(ctx context.Context) ([]models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE active = TRUE AND role IN ($1, $2) ORDER BY created_at"
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, models.RoleAdmin, models.RoleSuperAdmin); err != nil {
		return nil, fmt.Errorf("list active admins: %w", err)
	}
	return users, nil
}
