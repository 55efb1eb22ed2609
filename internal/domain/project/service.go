package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service applies structural edits to the remote project.
type Service struct {
	store  Store
	meta   TableMetadata
	model  Model
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService creates a new project service.
func NewService(store Store, meta TableMetadata, model Model, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:  store,
		meta:   meta,
		model:  model,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Document fetches the current project definition.
func (s *Service) Document(ctx context.Context) (*Document, error) {
	raw, err := s.store.GetProject(ctx)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// commitState is a step of the snapshot-backed write protocol.
type commitState string

const (
	stateIdle        commitState = "idle"
	stateSnapshotted commitState = "snapshotted"
	stateWritten     commitState = "written"
	statePublished   commitState = "published"
	stateStagedOnly  commitState = "staged_only"
	stateRolledBack  commitState = "rolled_back"
)

// mutate re-reads the document, applies patch and commits the result.
func (s *Service) mutate(ctx context.Context, op string, publish bool, patch func(doc *Document) error) error {
	doc, err := s.Document(ctx)
	if err != nil {
		return fmt.Errorf("%s: reading project: %w", op, err)
	}
	if err := patch(doc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.commit(ctx, op, doc, publish); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// commit writes doc behind a snapshot. A failed write or publish restores
// the snapshot before the original error is returned.
func (s *Service) commit(ctx context.Context, op string, doc *Document, publish bool) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding project: %w", err)
	}
	log := s.logger.With("op", op)

	snapshot, err := s.store.CreateSnapshot(ctx, fmt.Sprintf("cubelink snapshot %s", s.now().Format(time.RFC3339)))
	if err != nil {
		log.Info("commit aborted", "state", stateIdle, "error", err)
		return fmt.Errorf("creating snapshot: %w", err)
	}
	log.Info("commit state", "state", stateSnapshotted, "snapshot", snapshot)

	if err := s.store.PutProject(ctx, body); err != nil {
		return s.rollback(ctx, log, snapshot, fmt.Errorf("writing project: %w", err))
	}
	log.Info("commit state", "state", stateWritten)

	final := stateStagedOnly
	if publish {
		if err := s.store.PublishProject(ctx); err != nil {
			return s.rollback(ctx, log, snapshot, fmt.Errorf("publishing project: %w", err))
		}
		final = statePublished
	}
	log.Info("commit state", "state", final)

	if err := s.store.DeleteSnapshot(ctx, snapshot); err != nil {
		log.Warn("deleting snapshot after commit", "snapshot", snapshot, "error", err)
	}
	if err := s.model.Refresh(ctx); err != nil {
		return fmt.Errorf("refreshing after commit: %w", err)
	}
	return nil
}

func (s *Service) rollback(ctx context.Context, log *slog.Logger, snapshot string, cause error) error {
	var errs []error
	if err := s.store.RestoreSnapshot(ctx, snapshot); err != nil {
		errs = append(errs, fmt.Errorf("restoring snapshot %s: %w", snapshot, err))
	}
	if err := s.store.DeleteSnapshot(ctx, snapshot); err != nil {
		errs = append(errs, fmt.Errorf("deleting snapshot %s: %w", snapshot, err))
	}
	if err := s.model.Refresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("refreshing after rollback: %w", err))
	}
	log.Info("commit state", "state", stateRolledBack, "cause", cause, "rollback_errors", len(errs))
	if len(errs) > 0 {
		return errors.Join(append([]error{cause}, errs...)...)
	}
	return cause
}
