package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxIterationsByErrorClass(t *testing.T) {
	assert.Equal(t, 7, MaxIterations("NoMethodError", 20))
	assert.Equal(t, 5, MaxIterations("NotAuthorizedError", 20))
	assert.Equal(t, 10, MaxIterations("ActiveRecord::RecordNotFound", 20))
	assert.Equal(t, 15, MaxIterations("SystemStackError", 20))
	assert.Equal(t, 10, MaxIterations("SomeOtherError", 20))
}

func TestMaxIterationsRespectsCeiling(t *testing.T) {
	assert.Equal(t, 3, MaxIterations("NoMethodError", 3))
}

func TestThinkingBudgetScalesDownAndFloorsAt2000(t *testing.T) {
	early := ThinkingBudget(1, 10, "SomeError")
	late := ThinkingBudget(10, 10, "SomeError")
	assert.Equal(t, 8000, early)
	assert.GreaterOrEqual(t, late, 2000)
	assert.Less(t, late, early)
}

func TestThinkingBudgetUsesComplexBase(t *testing.T) {
	assert.Equal(t, 12000, ThinkingBudget(1, 10, "SystemStackError"))
	assert.Equal(t, 4000, ThinkingBudget(1, 10, "NoMethodError"))
}

func TestTruncateToolResultKeepsHeadAndTail(t *testing.T) {
	text := strings.Repeat("a", 5000) + strings.Repeat("b", 5000)
	result := TruncateToolResult(text, 1000)
	assert.True(t, strings.HasPrefix(result, strings.Repeat("a", 500)))
	assert.True(t, strings.HasSuffix(result, strings.Repeat("b", 500)))
	assert.Contains(t, result, "truncated")
}

func TestTruncateToolResultNoopUnderLimit(t *testing.T) {
	assert.Equal(t, "short", TruncateToolResult("short", 1000))
}
