package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"permit-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ApplicationRepo implements ports.ApplicationRepository. It only ever reads
// the payment-relevant columns and writes the status; everything else on the
// applications table belongs to the permits service.
type ApplicationRepo struct {
	pool Pool
}

// NewApplicationRepo creates a new ApplicationRepo.
func NewApplicationRepo(pool Pool) *ApplicationRepo {
	return &ApplicationRepo{pool: pool}
}

// Get fetches the payment view of an application.
func (r *ApplicationRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	query := `SELECT id, user_id, status, updated_at FROM applications WHERE id = $1`

	a := &domain.Application{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.UserID, &a.Status, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

// SetPaymentStatus updates only the status column.
func (r *ApplicationRepo) SetPaymentStatus(ctx context.Context, id uuid.UUID, status domain.ApplicationStatus) error {
	query := `UPDATE applications SET status = $1, updated_at = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set application payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("application not found: %s", id)
	}
	return nil
}
