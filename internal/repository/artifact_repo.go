package repository

import (
	"context"
	"database/sql"

	"ecobee_automation/internal/models"
)

// ArtifactSQLite keeps the queryable index of diagnostic artifacts. The
// evidence blobs live on disk; this table only points at them.
type ArtifactSQLite struct {
	db *sql.DB
}

func NewArtifactSQLite(db *sql.DB) *ArtifactSQLite { return &ArtifactSQLite{db: db} }

func (r *ArtifactSQLite) Insert(ctx context.Context, a models.DiagnosticArtifact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO diagnostic_artifacts (id, captured_at, operation, attempt, error_kind, summary, html_path, screenshot_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.CapturedAt.UTC().Format("2006-01-02 15:04:05"),
		a.Operation,
		a.Attempt,
		a.ErrorKind,
		a.Summary,
		nullable(a.HTMLPath),
		nullable(a.ScreenPath),
	)
	return err
}

func (r *ArtifactSQLite) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM diagnostic_artifacts WHERE id = ?`, id)
	return err
}

// List returns the whole index, oldest first.
func (r *ArtifactSQLite) List(ctx context.Context) ([]models.DiagnosticArtifact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, captured_at, operation, attempt, error_kind, summary, html_path, screenshot_path
		FROM diagnostic_artifacts ORDER BY captured_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.DiagnosticArtifact, 0, 16)
	for rows.Next() {
		var (
			a        models.DiagnosticArtifact
			summary  sql.NullString
			htmlPath sql.NullString
			pngPath  sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.CapturedAt, &a.Operation, &a.Attempt, &a.ErrorKind, &summary, &htmlPath, &pngPath); err != nil {
			return nil, err
		}
		a.CapturedAt = a.CapturedAt.UTC()
		a.Summary = summary.String
		a.HTMLPath = htmlPath.String
		a.ScreenPath = pngPath.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
