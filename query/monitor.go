package query

import "github.com/aperture-oss/knowledge/core"

// QueryMonitor provides hooks to observe the query process.
// Implement this interface to track intermediate steps and results.
type QueryMonitor interface {
	Start(query string)
	AfterEmbedding(vector []float32)
	AfterRetrieval(results []core.ScoredRecord)
	AfterGeneration(answer string)
	Finish()
}

// noopMonitor is a no-op implementation of QueryMonitor
type noopMonitor struct{}

var _ QueryMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                       {}
func (n *noopMonitor) AfterEmbedding(_ []float32)           {}
func (n *noopMonitor) AfterRetrieval(_ []core.ScoredRecord) {}
func (n *noopMonitor) AfterGeneration(_ string)             {}
func (n *noopMonitor) Finish()                              {}
