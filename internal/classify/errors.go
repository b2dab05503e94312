package classify

import (
	"fmt"
	"strings"
)

// ClassificationError reports roles that ended up missing, duplicated, or
// domains no predicate claimed. It is fatal for the current cell.
type ClassificationError struct {
	Missing   []Role
	Duplicate []Role
	Unmatched []int // domain ids no predicate claimed (quarter-model only)
}

func (e *ClassificationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing roles: %s", joinRoles(e.Missing)))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate roles: %s", joinRoles(e.Duplicate)))
	}
	if len(e.Unmatched) > 0 {
		parts = append(parts, fmt.Sprintf("unclassified domains: %v", e.Unmatched))
	}
	if len(parts) == 0 {
		parts = append(parts, "invalid classification")
	}
	return "domain classification failed: " + strings.Join(parts, "; ")
}

func (e *ClassificationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Duplicate) == 0 && len(e.Unmatched) == 0
}

func joinRoles(roles []Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
