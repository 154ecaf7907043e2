package availability

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgTemplateStore struct {
	pool *pgxpool.Pool
}

func NewPgTemplateStore(pool *pgxpool.Pool) *PgTemplateStore {
	return &PgTemplateStore{pool: pool}
}

func (s *PgTemplateStore) ListTemplates(ctx context.Context, serviceID uuid.UUID) ([]SlotTemplate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, service_id, day_of_week, start_time, end_time, start_at, end_at, is_available
		FROM slot_templates
		WHERE service_id = $1
		ORDER BY day_of_week, start_time, start_at
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SlotTemplate
	for rows.Next() {
		var t SlotTemplate
		err := rows.Scan(
			&t.ID,
			&t.ServiceID,
			&t.DayOfWeek,
			&t.StartTime,
			&t.EndTime,
			&t.StartAt,
			&t.EndAt,
			&t.Available,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
