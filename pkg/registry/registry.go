// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tutor-chat/internal/common/probe"
)

func LoadRegistry(path string) (*EndpointRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg EndpointRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// SaveRegistry writes the registry, creating the directory if needed.
func SaveRegistry(reg *EndpointRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// Operation returns the operation with the given id.
func (r *EndpointRegistry) Operation(id string) (*Operation, bool) {
	for i := range r.Operations {
		if r.Operations[i].ID == id {
			return &r.Operations[i], true
		}
	}
	return nil, false
}

// Candidates returns the candidate list for an operation, or nil.
func (r *EndpointRegistry) Candidates(id string) []probe.Candidate {
	if op, ok := r.Operation(id); ok {
		return op.Candidates
	}
	return nil
}

// AddCandidate appends c to the operation, creating the operation when it
// does not exist. Candidate ids must be unique within an operation.
func (r *EndpointRegistry) AddCandidate(opID string, c probe.Candidate) error {
	if err := c.Validate(); err != nil {
		return err
	}
	op, ok := r.Operation(opID)
	if !ok {
		r.Operations = append(r.Operations, Operation{ID: opID})
		op = &r.Operations[len(r.Operations)-1]
	}
	for _, existing := range op.Candidates {
		if existing.ID() == c.ID() {
			return fmt.Errorf("candidate %s already exists in operation %s", c.ID(), opID)
		}
	}
	op.Candidates = append(op.Candidates, c)
	r.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return nil
}

// Validate checks ids and every candidate.
func (r *EndpointRegistry) Validate() error {
	if len(r.Operations) == 0 {
		return fmt.Errorf("registry contains no operations")
	}
	ids := make(map[string]bool)
	for _, op := range r.Operations {
		if op.ID == "" {
			return fmt.Errorf("operation missing required field: id")
		}
		if ids[op.ID] {
			return fmt.Errorf("duplicate operation id: %s", op.ID)
		}
		ids[op.ID] = true

		if len(op.Candidates) == 0 {
			return fmt.Errorf("operation %s has no candidates", op.ID)
		}
		seen := make(map[string]bool)
		for _, c := range op.Candidates {
			if seen[c.ID()] {
				return fmt.Errorf("operation %s: duplicate candidate %s", op.ID, c.ID())
			}
			seen[c.ID()] = true
		}
		if err := probe.ValidateAll(op.Candidates); err != nil {
			return fmt.Errorf("operation %s: %w", op.ID, err)
		}
	}
	return nil
}
