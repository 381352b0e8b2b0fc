package service

import (
	"context"

	"ecobee_automation/internal/models"
	"ecobee_automation/internal/repository"
)

type DiagnosticsService struct {
	artifacts repository.ArtifactRepo
}

func NewDiagnosticsService(artifacts repository.ArtifactRepo) *DiagnosticsService {
	return &DiagnosticsService{artifacts: artifacts}
}

// List returns the artifact index, oldest first.
func (s *DiagnosticsService) List(ctx context.Context) ([]models.DiagnosticArtifact, error) {
	return s.artifacts.List(ctx)
}
