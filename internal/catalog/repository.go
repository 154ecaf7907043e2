package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrServiceNotFound  = errors.New("service not found")
	ErrBodyPartNotFound = errors.New("body part not found")
)

// Repository is the read-only catalog of services and body parts.
// Catalog rows are clinic configuration, owned by schedule-setup tooling.
type Repository interface {
	ListActiveServices(ctx context.Context) ([]Service, error)
	GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error)
	ListBodyPartsByService(ctx context.Context, serviceID uuid.UUID) ([]BodyPart, error)
	GetBodyPartByID(ctx context.Context, id uuid.UUID) (*BodyPart, error)
}
