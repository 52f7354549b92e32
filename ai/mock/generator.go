package mock

import "context"

// MockGenerator is a test double for ai.Generator.
// It allows custom behavior injection via function fields.
type MockGenerator struct {
	// CompleteFunc is called by Complete if set.
	// If nil, returns the canned Answer.
	CompleteFunc func(ctx context.Context, prompt string) (string, error)

	// Answer is the canned response returned when CompleteFunc is nil.
	Answer string

	// LastPrompt records the most recent prompt for test assertions.
	LastPrompt string

	callCount int
}

// NewMockGenerator creates a mock generator with a default canned answer.
// Note: Returns concrete type to allow test assertions.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Answer: "mock answer"}
}

// Complete returns the canned answer or delegates to CompleteFunc.
func (m *MockGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	m.callCount++
	m.LastPrompt = prompt

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return m.Answer, nil
}

// CallCount returns the number of times Complete was called.
func (m *MockGenerator) CallCount() int {
	return m.callCount
}

// Reset clears the call count, recorded prompt, and custom function.
func (m *MockGenerator) Reset() {
	m.callCount = 0
	m.LastPrompt = ""
	m.CompleteFunc = nil
}
