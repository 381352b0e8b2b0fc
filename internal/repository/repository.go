package repository

import (
	"context"
	"database/sql"
	"time"

	"ecobee_automation/internal/models"
)

type EventRepo interface {
	Append(ctx context.Context, e models.AutomationEvent) error
	List(ctx context.Context, from, to time.Time, typ, device string) ([]models.AutomationEvent, error)
}

type ArtifactRepo interface {
	Insert(ctx context.Context, a models.DiagnosticArtifact) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.DiagnosticArtifact, error)
}

type Repository struct {
	Events    EventRepo
	Artifacts ArtifactRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Events:    NewEventSQLite(db),
		Artifacts: NewArtifactSQLite(db),
	}
}
