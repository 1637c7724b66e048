package recommend

import "github.com/poiesic/retailrag/core"

// Monitor provides hooks to observe a recommendation.
// Implement this interface to trace the intermediate steps of a request.
type Monitor interface {
	Start(query core.Query)
	AfterEmbedding(modality core.Modality, dimension int)
	AfterSearch(column string, hits []core.Retrieved)
	AfterPrompt(prompt string)
	Finish(answer string)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.Query)                       {}
func (n *noopMonitor) AfterEmbedding(_ core.Modality, _ int)    {}
func (n *noopMonitor) AfterSearch(_ string, _ []core.Retrieved) {}
func (n *noopMonitor) AfterPrompt(_ string)                     {}
func (n *noopMonitor) Finish(_ string)                          {}
