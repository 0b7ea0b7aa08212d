package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

// LabelService manages the owner's tags or ingredients; one instance per
// kind. There is no Create: labels come into existence through recipe writes.
type LabelService struct {
	kind   model.LabelKind
	repo   repository.LabelRepository
	logger *slog.Logger
}

func NewLabelService(kind model.LabelKind, repo repository.LabelRepository, logger *slog.Logger) *LabelService {
	return &LabelService{kind: kind, repo: repo, logger: logger}
}

// Kind reports which label table this service manages.
func (s *LabelService) Kind() model.LabelKind { return s.kind }

func (s *LabelService) List(ctx context.Context, ownerID int64, filter repository.LabelFilter) ([]model.Label, error) {
	filter.ListOptions = clampList(filter.ListOptions)

	labels, err := s.repo.ListLabels(ctx, s.kind, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("listing %ss: %w", s.kind, err)
	}
	return labels, nil
}

func (s *LabelService) Get(ctx context.Context, ownerID, id int64) (*model.Label, error) {
	return s.repo.GetLabel(ctx, s.kind, ownerID, id)
}

// Update renames one of the owner's labels. The existence check comes first,
// so another user's id is a 404 even when the new name is invalid.
func (s *LabelService) Update(ctx context.Context, ownerID, id int64, name string) (*model.Label, error) {
	label, err := s.repo.GetLabel(ctx, s.kind, ownerID, id)
	if err != nil {
		return nil, err
	}

	fields := fieldErrors{}
	label.Name = fields.checkText("name", name, MaxLabelNameLength)
	if err := fields.err(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLabel(ctx, s.kind, ownerID, label); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating %s %d: %w", s.kind, id, err)
	}

	s.logger.Info("label renamed",
		slog.String("kind", string(s.kind)),
		slog.Int64("id", id),
		slog.String("name", label.Name),
	)
	return label, nil
}

// Delete removes one of the owner's labels and detaches it from recipes.
func (s *LabelService) Delete(ctx context.Context, ownerID, id int64) error {
	if err := s.repo.DeleteLabel(ctx, s.kind, ownerID, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting %s %d: %w", s.kind, id, err)
	}

	s.logger.Info("label deleted", slog.String("kind", string(s.kind)), slog.Int64("id", id))
	return nil
}
