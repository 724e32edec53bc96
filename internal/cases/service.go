package cases

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/counsel-pm/counsel/internal/shared"
)

type Service struct {
	repo   Repository
	audit  shared.AuditRecorder
	logger *slog.Logger
}

func NewService(repo Repository, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

func (s *Service) List(ctx context.Context, firmID int64, filters shared.ListFilters) ([]Case, int, error) {
	return s.repo.List(ctx, firmID, filters)
}

// Open registers a new case in firmID with status open.
func (s *Service) Open(ctx context.Context, actorID, firmID int64, in CreateInput) (Case, error) {
	c := Case{
		FirmID:    firmID,
		Reference: strings.ToUpper(strings.TrimSpace(in.Reference)),
		Title:     strings.TrimSpace(in.Title),
		Status:    StatusOpen,
		CreatedBy: actorID,
	}
	if c.Reference == "" || c.Title == "" {
		return Case{}, fmt.Errorf("%w: reference and title are required", shared.ErrValidation)
	}
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return Case{}, err
	}
	s.record(ctx, actorID, firmID, "case.create", created.ID, map[string]any{"reference": created.Reference})
	return created, nil
}

// ChangeStatus moves a case to status. Closed cases stay closed.
func (s *Service) ChangeStatus(ctx context.Context, actorID, firmID, id int64, status Status) (Case, error) {
	if !status.Valid() {
		return Case{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, status)
	}
	current, err := s.repo.Get(ctx, firmID, id)
	if err != nil {
		return Case{}, err
	}
	if current.Status == status {
		return current, nil
	}
	if current.Status == StatusClosed {
		return Case{}, fmt.Errorf("%w: case %s is closed", shared.ErrConflict, current.Reference)
	}
	updated, err := s.repo.UpdateStatus(ctx, firmID, id, status)
	if err != nil {
		return Case{}, err
	}
	s.record(ctx, actorID, firmID, "case.update_status", id, map[string]any{
		"from": string(current.Status),
		"to":   string(status),
	})
	return updated, nil
}

func (s *Service) record(ctx context.Context, actorID, firmID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		FirmID:   firmID,
		Action:   action,
		Entity:   "case",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("cases audit record", slog.String("action", action), slog.Any("error", err))
	}
}
