package index

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrRepositoryRequired is returned when an embedding repository is not provided.
	ErrRepositoryRequired = errors.New("embedding repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrNoFields is returned when an indexing request carries no text fields.
	ErrNoFields = errors.New("no text fields to index")
)

// PartialError reports an indexing run in which some fields were stored and
// others failed. The successfully indexed fields remain in the store.
type PartialError struct {
	// Indexed is how many fields were embedded and stored.
	Indexed int

	// Failed maps each failed category to the error that stopped it.
	Failed map[string]error
}

// Error lists the failed categories.
func (e *PartialError) Error() string {
	return fmt.Sprintf("indexed %d fields, %d failed: %s",
		e.Indexed, len(e.Failed), strings.Join(e.Categories(), ", "))
}

// Categories returns the failed category names in sorted order.
func (e *PartialError) Categories() []string {
	categories := make([]string, 0, len(e.Failed))
	for category := range e.Failed {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

// Unwrap exposes the underlying per-category errors for errors.Is checks.
func (e *PartialError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}
