package services

import (
	"context"
	"log"

	"mindfeed-auth/internal/adapters/persistence/models"
	"mindfeed-auth/internal/core/domain"
)

// EventPublisher delivers auth events to downstream consumers. Implementations
// may fail; callers log the failure and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.AuthEvent) error
}

// PrincipalLookup reads the live user record behind a token
type PrincipalLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// LogEventPublisher writes event metadata to the log. Used when no broker is
// configured.
type LogEventPublisher struct{}

func (LogEventPublisher) Publish(_ context.Context, event domain.AuthEvent) error {
	log.Printf("📣 Event %s user=%d", event.Type, event.UserID)
	return nil
}
