package project

import "errors"

var (
	// ErrUnknownDataset indicates no dataset with the given name exists in the project.
	ErrUnknownDataset = errors.New("unknown dataset")
	// ErrUnknownColumn indicates the dataset or table has no column with the given name.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrDuplicateFeature indicates a feature with the given name already exists.
	ErrDuplicateFeature = errors.New("feature already exists")
	// ErrSnapshotNotFound indicates no snapshot carries the given name.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrInvalidInput indicates a malformed mutation request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMalformedDocument indicates the project document lacks a structure a mutation needs.
	ErrMalformedDocument = errors.New("malformed project document")
)
