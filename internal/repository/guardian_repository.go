package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sba-transport-api/internal/models"
)

// GuardianRepository reads guardian records.
type GuardianRepository struct {
	db *sqlx.DB
}

// NewGuardianRepository constructs the repository.
func NewGuardianRepository(db *sqlx.DB) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// GetByID fetches a guardian by identifier.
func (r *GuardianRepository) GetByID(ctx context.Context, id string) (*models.Guardian, error) {
	const query = `SELECT id, full_name, email, phone, created_at FROM guardians WHERE id = $1`
	var guardian models.Guardian
	if err := r.db.GetContext(ctx, &guardian, query, id); err != nil {
		return nil, err
	}
	return &guardian, nil
}
