package query

import (
	"errors"
	"fmt"
)

var (
	// ErrRepositoryRequired is returned when an embedding repository is not provided.
	ErrRepositoryRequired = errors.New("embedding repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")
)

// Stage identifies where in the query flow an error occurred.
type Stage string

const (
	// StageValidate covers request validation.
	StageValidate Stage = "validate"

	// StageEmbed covers query embedding.
	StageEmbed Stage = "embed"

	// StageRetrieve covers candidate listing and ranking.
	StageRetrieve Stage = "retrieve"

	// StageGenerate covers answer generation.
	StageGenerate Stage = "generate"
)

// StageError wraps an error with the query stage where it occurred, so
// callers can distinguish a bad request from a failing provider.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
