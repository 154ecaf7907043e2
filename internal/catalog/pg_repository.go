package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	var description *string

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Code,
		&s.Category,
		&description,
		&s.DurationMinutes,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	s.Description = description
	return &s, nil
}

func scanBodyPart(row pgx.Row) (*BodyPart, error) {
	var b BodyPart
	var prep *string

	err := row.Scan(
		&b.ID,
		&b.ServiceID,
		&b.Name,
		&prep,
		&b.Active,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBodyPartNotFound
		}
		return nil, err
	}

	b.PreparationText = prep
	return &b, nil
}

// Interface methods

func (r *PgRepository) ListActiveServices(ctx context.Context) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, code, category, description, duration_minutes, active, created_at, updated_at
		FROM services
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, code, category, description, duration_minutes, active, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) ListBodyPartsByService(ctx context.Context, serviceID uuid.UUID) ([]BodyPart, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, service_id, name, preparation_text, active, created_at, updated_at
		FROM body_parts
		WHERE service_id = $1 AND active = true
		ORDER BY name
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BodyPart
	for rows.Next() {
		b, err := scanBodyPart(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetBodyPartByID(ctx context.Context, id uuid.UUID) (*BodyPart, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, service_id, name, preparation_text, active, created_at, updated_at
		FROM body_parts
		WHERE id = $1
	`, id)
	return scanBodyPart(row)
}
