// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"tutor-chat/internal/common/probe"
	"tutor-chat/pkg/registry"
)

const defaultRegistryPath = "configs/agent-endpoints.json"

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	// Add command flags
	addPath := addCmd.String("path", defaultRegistryPath, "Path to registry file")
	operation := addCmd.String("operation", "", "Operation ID (start-run or fetch-session)")
	name := addCmd.String("name", "", "Candidate name (e.g., session-runs)")
	method := addCmd.String("method", "POST", "HTTP method")
	path := addCmd.String("endpoint", "", "Endpoint path, may contain {session_id}")
	bodyKey := addCmd.String("bodyKey", "", "Wrap the payload under this key (empty sends it raw)")
	sessionParam := addCmd.String("session", "none", "Where the session id goes (none, path, query, body)")
	sessionKey := addCmd.String("sessionKey", "", "Query or body key for the session id (default session_id)")

	listPath := listCmd.String("path", defaultRegistryPath, "Path to registry file")
	validatePath := validateCmd.String("path", defaultRegistryPath, "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *operation == "" || *name == "" || *path == "" {
			fmt.Println("Error: operation, name, and endpoint are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		candidate := probe.Candidate{
			Name:         *name,
			Method:       *method,
			Path:         *path,
			BodyKey:      *bodyKey,
			SessionParam: probe.SessionParam(*sessionParam),
			SessionKey:   *sessionKey,
		}
		if err := addCandidate(*addPath, *operation, candidate); err != nil {
			fmt.Printf("Error adding candidate: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added candidate %s to %s\n", candidate, *operation)

	case "list":
		listCmd.Parse(os.Args[2:])
		if err := listCandidates(*listPath); err != nil {
			fmt.Printf("Error listing registry: %v\n", err)
			os.Exit(1)
		}

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(*validatePath); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func addCandidate(path, operation string, c probe.Candidate) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		// If file doesn't exist, create new registry
		if os.IsNotExist(err) {
			reg = &registry.EndpointRegistry{
				Version:     "1.0.0",
				LastUpdated: time.Now().UTC().Format(time.RFC3339),
			}
		} else {
			return fmt.Errorf("failed to load registry: %w", err)
		}
	}

	if err := reg.AddCandidate(operation, c); err != nil {
		return err
	}
	return registry.SaveRegistry(reg, path)
}

func listCandidates(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	for _, op := range reg.Operations {
		fmt.Printf("%s (%d candidates)\n", op.ID, len(op.Candidates))
		for i, c := range op.Candidates {
			fmt.Printf("  %d. %s\n", i+1, c)
		}
	}
	return nil
}

func validateRegistry(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return err
	}
	fmt.Printf("Registry validation passed. Found %d operations.\n", len(reg.Operations))
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add an endpoint candidate to an operation
  list     Print operations and their candidates in probe order
  validate Validate the registry file
  help     Show this help message

Examples:
  registry-updater add -operation start-run -name session-runs -endpoint "/v1/sessions/{session_id}/runs" -bodyKey input
  registry-updater add -operation fetch-session -name by-query -method GET -endpoint /v1/sessions -session query
  registry-updater list -path configs/agent-endpoints.json
  registry-updater validate -path configs/agent-endpoints.json

Use 'registry-updater <command> -h' for more information about a command.

`)
}
