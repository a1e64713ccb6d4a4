package diagnostics

import (
	"regexp"
	"strings"

	"go.lsp.dev/protocol"
)

// Predicate decides whether a visible snapshot is the one a caller is waiting for
type Predicate func(Snapshot) bool

// Any accepts the first visible snapshot, including an empty one
func Any(Snapshot) bool { return true }

// None accepts a snapshot with no diagnostics
func None(s Snapshot) bool { return len(s.Diagnostics) == 0 }

// Count accepts a snapshot with exactly n diagnostics
func Count(n int) Predicate {
	return func(s Snapshot) bool {
		return len(s.Diagnostics) == n
	}
}

// AtLeastVersion accepts snapshots published for version v or later
func AtLeastVersion(v int32) Predicate {
	return func(s Snapshot) bool {
		return s.Version >= v
	}
}

// HasSeverity accepts a snapshot containing a diagnostic of the given severity
func HasSeverity(sev protocol.DiagnosticSeverity) Predicate {
	return some(func(d protocol.Diagnostic) bool { return d.Severity == sev })
}

// ContainsMessage accepts a snapshot with a diagnostic whose message contains substr
func ContainsMessage(substr string) Predicate {
	return some(func(d protocol.Diagnostic) bool { return strings.Contains(d.Message, substr) })
}

// MatchesMessage accepts a snapshot with a diagnostic whose message matches re
func MatchesMessage(re *regexp.Regexp) Predicate {
	return some(func(d protocol.Diagnostic) bool { return re.MatchString(d.Message) })
}

// FromSource accepts a snapshot with a diagnostic reported by source
func FromSource(source string) Predicate {
	return some(func(d protocol.Diagnostic) bool { return d.Source == source })
}

// All accepts a snapshot every pred accepts
func All(preds ...Predicate) Predicate {
	return func(s Snapshot) bool {
		for _, pred := range preds {
			if !pred(s) {
				return false
			}
		}
		return true
	}
}

func some(match func(protocol.Diagnostic) bool) Predicate {
	return func(s Snapshot) bool {
		for _, d := range s.Diagnostics {
			if match(d) {
				return true
			}
		}
		return false
	}
}

// Filter returns the diagnostics match accepts, in publish order
func Filter(diags []protocol.Diagnostic, match func(protocol.Diagnostic) bool) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		if match(d) {
			out = append(out, d)
		}
	}
	return out
}

// CountBySeverity tallies diagnostics per severity. An unset severity counts as an error.
func CountBySeverity(diags []protocol.Diagnostic) map[protocol.DiagnosticSeverity]int {
	counts := make(map[protocol.DiagnosticSeverity]int)
	for _, d := range diags {
		sev := d.Severity
		if sev == 0 {
			sev = protocol.DiagnosticSeverityError
		}
		counts[sev]++
	}
	return counts
}
