package project

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/rpggio/cubelink/internal/remote"
)

// Clone creates a new project from a server-side copy of the current one.
// The copy keeps the current datasets' connections and is renamed to name.
// The returned model id is the copy's cube with the active model's name.
func (s *Service) Clone(ctx context.Context, name string) (CloneResult, error) {
	if name == "" {
		return CloneResult{}, fmt.Errorf("clone project: %w: name is empty", ErrInvalidInput)
	}
	current, err := s.Document(ctx)
	if err != nil {
		return CloneResult{}, fmt.Errorf("clone project: reading project: %w", err)
	}
	raw, err := s.store.CloneProject(ctx)
	if err != nil {
		return CloneResult{}, fmt.Errorf("clone project: %w", err)
	}
	copied, err := Decode(raw)
	if err != nil {
		return CloneResult{}, fmt.Errorf("clone project: %w", err)
	}
	copied.Rename(name)

	originals := current.Datasets()
	for i, ds := range copied.Datasets() {
		if i >= len(originals) {
			break
		}
		ds.SetConnectionID(originals[i].ConnectionID())
	}

	cube, err := copied.CubeByName(s.model.ModelName())
	if err != nil {
		return CloneResult{}, fmt.Errorf("clone project: %w", err)
	}
	body, err := json.Marshal(copied)
	if err != nil {
		return CloneResult{}, fmt.Errorf("clone project: encoding project: %w", err)
	}
	id, err := s.store.CreateProject(ctx, body)
	if err != nil {
		return CloneResult{}, fmt.Errorf("clone project: %w", err)
	}
	s.logger.Info("project cloned", "name", name, "project_id", id, "model_id", cube.ID())
	return CloneResult{ProjectID: id, ModelID: cube.ID()}, nil
}

// ListSnapshots returns the project's snapshots, newest first.
func (s *Service) ListSnapshots(ctx context.Context) ([]remote.Snapshot, error) {
	snaps, err := s.store.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	slices.Reverse(snaps)
	return snaps, nil
}

// SnapshotIDs returns the ids of every snapshot named name, newest first.
func (s *Service) SnapshotIDs(ctx context.Context, name string) ([]string, error) {
	snaps, err := s.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, snap := range snaps {
		if snap.Name == name {
			ids = append(ids, snap.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
	}
	return ids, nil
}

// CreateSnapshot saves the current project definition under tag.
func (s *Service) CreateSnapshot(ctx context.Context, tag string) (string, error) {
	id, err := s.store.CreateSnapshot(ctx, tag)
	if err != nil {
		return "", fmt.Errorf("creating snapshot: %w", err)
	}
	s.logger.Info("snapshot created", "snapshot", id, "tag", tag)
	return id, nil
}

func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	if err := s.store.DeleteSnapshot(ctx, id); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}
	return nil
}

// RestoreSnapshot replaces the project definition with a snapshot and refreshes the model.
func (s *Service) RestoreSnapshot(ctx context.Context, id string) error {
	if err := s.store.RestoreSnapshot(ctx, id); err != nil {
		return fmt.Errorf("restoring snapshot %s: %w", id, err)
	}
	s.logger.Info("snapshot restored", "snapshot", id)
	if err := s.model.Refresh(ctx); err != nil {
		return fmt.Errorf("refreshing after restore: %w", err)
	}
	return nil
}
