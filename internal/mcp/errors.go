package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/cubelink/internal/cube"
	"github.com/rpggio/cubelink/internal/domain/calc"
	"github.com/rpggio/cubelink/internal/domain/explain"
	"github.com/rpggio/cubelink/internal/domain/project"
	"github.com/rpggio/cubelink/internal/domain/query"
	"github.com/rpggio/cubelink/internal/domain/schema"
	"github.com/rpggio/cubelink/internal/remote"
	"github.com/rpggio/cubelink/internal/warehouse"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
}

func (e *APIError) CodeValue() string {
	return e.Code
}

func (e *APIError) MessageValue() string {
	return e.Message
}

func (e *APIError) RecoveryHintValue() string {
	return e.RecoveryHint
}

// MapError maps domain errors to MCP error codes. Unknown errors map to INTERNAL.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var status *remote.StatusError
	switch {
	case errors.Is(err, schema.ErrUnknownFeature):
		return &APIError{Code: "UNKNOWN_FEATURE", Message: msg, RecoveryHint: "Call list_features for valid names"}
	case errors.Is(err, schema.ErrUnknownHierarchy):
		return &APIError{Code: "UNKNOWN_HIERARCHY", Message: msg, RecoveryHint: "Call list_hierarchies and list_hierarchy_levels"}
	case errors.Is(err, schema.ErrNotFound):
		return &APIError{Code: "NOT_FOUND", Message: msg}
	case errors.Is(err, project.ErrDuplicateFeature):
		return &APIError{Code: "DUPLICATE_FEATURE", Message: msg, RecoveryHint: "Choose a name not returned by list_features"}
	case errors.Is(err, project.ErrUnknownDataset):
		return &APIError{Code: "UNKNOWN_DATASET", Message: msg, RecoveryHint: "Check the dataset name in the project"}
	case errors.Is(err, project.ErrUnknownColumn):
		return &APIError{Code: "UNKNOWN_COLUMN", Message: msg, RecoveryHint: "Check the column name in the dataset"}
	case errors.Is(err, project.ErrSnapshotNotFound):
		return &APIError{Code: "SNAPSHOT_NOT_FOUND", Message: msg, RecoveryHint: "Call list_snapshots"}
	case errors.Is(err, explain.ErrNativeQueryNotFound):
		return &APIError{Code: "NATIVE_QUERY_NOT_FOUND", Message: msg, RecoveryHint: "Retry explain_query"}
	case errors.Is(err, query.ErrInvalidInput), errors.Is(err, project.ErrInvalidInput),
		errors.Is(err, calc.ErrInvalidInput), errors.Is(err, warehouse.ErrInvalidInput):
		return &APIError{Code: "INVALID_ARGUMENT", Message: msg}
	case errors.Is(err, query.ErrQuery):
		return &APIError{Code: "QUERY_FAILED", Message: msg, RecoveryHint: "Fix the query text and retry"}
	case errors.Is(err, cube.ErrNoWarehouse):
		return &APIError{Code: "NO_WAREHOUSE", Message: msg, RecoveryHint: "Configure a warehouse connection"}
	case errors.Is(err, remote.ErrAuthentication):
		return &APIError{Code: "AUTHENTICATION_FAILED", Message: msg, RecoveryHint: "Check the configured credentials"}
	case errors.As(err, &status):
		return &APIError{Code: "REMOTE_ERROR", Message: msg, Details: map[string]int{"status_code": status.StatusCode}}
	case errors.Is(err, schema.ErrSchemaParse), errors.Is(err, remote.ErrMalformedResponse), errors.Is(err, project.ErrMalformedDocument):
		return &APIError{Code: "MALFORMED_RESPONSE", Message: msg}
	default:
		return &APIError{Code: "INTERNAL", Message: msg}
	}
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
