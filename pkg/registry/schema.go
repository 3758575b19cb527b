// pkg/registry/schema.go
package registry

import "tutor-chat/internal/common/probe"

// Logical agent operations.
const (
	OperationStartRun     = "start-run"
	OperationFetchSession = "fetch-session"
)

// EndpointRegistry lists candidate request shapes per logical agent operation.
type EndpointRegistry struct {
	Version     string      `json:"version"`
	LastUpdated string      `json:"lastUpdated"`
	Operations  []Operation `json:"operations"`
}

type Operation struct {
	ID          string            `json:"id"`
	Description string            `json:"description,omitempty"`
	Candidates  []probe.Candidate `json:"candidates"`
}
