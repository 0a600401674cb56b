// Package validation holds the input-shape checks the orchestrator applies
// before a request is allowed to enter Stage AB: request text bounds,
// session/tenant identifier shape, and the structural invariants of
// inter-stage records that are cheap enough to check outside their owning
// package (plan dependency ordering).
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

const (
	minRequestLength = 1
	maxRequestLength = 4000
)

var std = validator.New()

// ValidateUserRequest rejects empty or over-long operator input before it
// reaches the LLM. Spec.md §7 treats this as INPUT_INVALID, routed to a
// clarification rather than a hard failure by the caller.
func ValidateUserRequest(text string) error {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minRequestLength {
		return fmt.Errorf("request text is required")
	}
	if len(trimmed) > maxRequestLength {
		return fmt.Errorf("request text must be %d characters or less", maxRequestLength)
	}
	return nil
}

// ValidateSessionID checks the shape of a caller-supplied session
// identifier used to key the conversation store.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("session id must be 128 characters or less")
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("session id contains invalid characters")
	}
	return nil
}

// ValidateTenantID checks the shape of a caller-supplied tenant identifier.
func ValidateTenantID(id string) error {
	if id == "" {
		return fmt.Errorf("tenant id is required")
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("tenant id contains invalid characters")
	}
	return nil
}

// StepDependencyOrder verifies that every id in dependsOn names a step that
// appears strictly earlier than index in ids, per the Plan
// invariant. ids is the ordered list of step identifiers in the plan;
// index is the position of the step being checked.
func StepDependencyOrder(ids []string, index int, dependsOn []string) error {
	earlier := make(map[string]bool, index)
	for i := 0; i < index; i++ {
		earlier[ids[i]] = true
	}
	for _, dep := range dependsOn {
		if !earlier[dep] {
			return fmt.Errorf("step %q depends on %q which is not an earlier step", ids[index], dep)
		}
	}
	return nil
}

// Struct validates a struct using field tags (go-playground/validator),
// returning a flattened, human-readable error.
func Struct(v interface{}) error {
	if err := std.Struct(v); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			var msgs []string
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}
