package postgres

import (
	"context"
	"time"

	"permit-payments/internal/core/domain"
	"permit-payments/internal/core/ports"
)

type notificationLogRepo struct {
	pool Pool
}

// NewNotificationLogRepo creates a PostgreSQL-backed NotificationLogRepository.
func NewNotificationLogRepo(pool Pool) ports.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

func (r *notificationLogRepo) Create(ctx context.Context, log *domain.NotificationDeliveryLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notification_delivery_logs
		(id, order_id, application_id, event, url, http_status, attempt, status, last_error, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		log.ID, log.OrderID, log.ApplicationID, log.Event, log.URL,
		log.HTTPStatus, log.Attempt, string(log.Status), log.LastError,
		log.CreatedAt, log.UpdatedAt,
	)
	return err
}

func (r *notificationLogRepo) Update(ctx context.Context, log *domain.NotificationDeliveryLog) error {
	log.UpdatedAt = time.Now()
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_delivery_logs
		 SET http_status=$1, attempt=$2, status=$3, last_error=$4, updated_at=$5
		 WHERE id=$6`,
		log.HTTPStatus, log.Attempt, string(log.Status), log.LastError, log.UpdatedAt, log.ID,
	)
	return err
}
