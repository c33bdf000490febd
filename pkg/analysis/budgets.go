// Package analysis implements the agentic tool-use loop that turns one
// ErrorGroup into a structured Analysis. Grounded on the platform's
// analyzer.py (retry-wrapped Claude loop with prompt caching) and
// restructured around the teacher's pkg/agent/llm_client.go Chunk
// streaming pattern and pkg/agent/controller/iterating.go's
// iteration-budget shape.
package analysis

import (
	"math"
	"strconv"
	"strings"
)

var (
	simpleErrorClasses = []string{
		"nomethoderror", "nameerror", "argumenterror", "typeerror",
		"keyerror", "attributeerror",
	}
	authErrorClasses = []string{
		"notauthorized", "forbidden", "authentication", "unauthorized",
	}
	dbErrorClasses = []string{
		"activerecord", "pg::", "statementinvalid", "deadlock", "mysql",
	}
	complexErrorClasses = []string{
		"systemstackerror", "timeout", "connectionerror", "nomemoryerror", "segfault",
	}
)

func matchesAny(errorClass string, classes []string) bool {
	lower := strings.ToLower(errorClass)
	for _, c := range classes {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

// MaxIterations returns the iteration ceiling for errorClass, capped at
// ceiling.
func MaxIterations(errorClass string, ceiling int) int {
	switch {
	case matchesAny(errorClass, simpleErrorClasses):
		return min(7, ceiling)
	case matchesAny(errorClass, authErrorClasses):
		return min(5, ceiling)
	case matchesAny(errorClass, dbErrorClasses):
		return min(10, ceiling)
	case matchesAny(errorClass, complexErrorClasses):
		return min(15, ceiling)
	default:
		return min(10, ceiling)
	}
}

// ThinkingBudget returns the extended-thinking token budget for
// iteration i of maxIterations total, for the given error class. The
// budget scales down as the loop approaches its iteration ceiling, so
// late iterations spend fewer tokens reasoning and more converging.
func ThinkingBudget(i, maxIterations int, errorClass string) int {
	base := 8000
	switch {
	case matchesAny(errorClass, simpleErrorClasses):
		base = 4000
	case matchesAny(errorClass, complexErrorClasses):
		base = 12000
	}

	scale := 1.0
	if i > 2 && maxIterations > 2 {
		scale = 1.0 - 0.75*(float64(i-2)/float64(maxIterations-2))
	}

	budget := int(math.Round(float64(base) * scale))
	if budget < 2000 {
		budget = 2000
	}
	return budget
}

// Tool result-size caps, in bytes of text, per §4.4.1.
const (
	CapReadFile       = 8000
	CapSearchCode     = 4000
	CapListDirectory  = 2000
	CapGetErrorTraces = 4000
)

// TruncateToolResult keeps the first and last halves of text when it
// exceeds limit, replacing the middle with a marker naming the dropped
// byte count.
func TruncateToolResult(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	half := limit / 2
	dropped := len(text) - limit
	head := text[:half]
	tail := text[len(text)-half:]
	return head + "\n...[truncated " + strconv.Itoa(dropped) + " bytes]...\n" + tail
}
