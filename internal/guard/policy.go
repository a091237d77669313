package guard

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// defaultDeniedPatterns are programs that are always refused.
var defaultDeniedPatterns = []string{"rm", "sudo", "shutdown", "reboot"}

// CommandPolicy filters verification commands. Denied patterns are checked
// first; a non-empty allow list then requires the program or the full
// command line to appear on it.
type CommandPolicy struct {
	Allowed []string
	Denied  []string
}

// NewCommandPolicy creates a policy with the given allow and deny lists,
// plus default denied patterns.
func NewCommandPolicy(allowed, denied []string) *CommandPolicy {
	return &CommandPolicy{
		Allowed: allowed,
		Denied:  append(append([]string{}, denied...), defaultDeniedPatterns...),
	}
}

// Check verifies whether a command line may run. Returns ErrEmptyCommand
// for blank input and ErrCommandDenied when the policy refuses.
func (p *CommandPolicy) Check(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return domain.ErrEmptyCommand
	}
	program := fields[0]

	for _, pattern := range p.Denied {
		matched, err := matchCommand(pattern, command, program)
		if err != nil {
			return fmt.Errorf("match denied pattern %q: %w", pattern, err)
		}
		if matched {
			return domain.ErrCommandDenied
		}
	}

	if len(p.Allowed) == 0 {
		return nil
	}
	for _, entry := range p.Allowed {
		if command == entry || program == entry {
			return nil
		}
	}
	return domain.ErrCommandDenied
}

// matchCommand checks if a command matches a denied pattern.
// Supports exact match on the program (e.g., "rm"), exact match on the full
// command line, and glob match via filepath.Match on either.
func matchCommand(pattern, command, program string) (bool, error) {
	// Exact match
	if command == pattern || program == pattern {
		return true, nil
	}

	// Glob match on the full command line
	matched, err := filepath.Match(pattern, command)
	if err != nil {
		return false, err
	}
	if matched {
		return true, nil
	}

	// Glob match on the program
	matched, err = filepath.Match(pattern, program)
	if err != nil {
		return false, err
	}
	return matched, nil
}
