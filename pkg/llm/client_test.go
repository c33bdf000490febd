package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToStringSliceAcceptsStringSliceOrAnySlice(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, toStringSlice([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, toStringSlice([]any{"a", "b"}))
	assert.Nil(t, toStringSlice(nil))
	assert.Nil(t, toStringSlice(42))
}

func TestContainsFoldIsCaseInsensitive(t *testing.T) {
	assert.True(t, containsFold("Your CREDIT Balance is too low", "credit balance"))
	assert.False(t, containsFold("insufficient funds", "credit balance"))
	assert.True(t, containsFold("anything", ""))
}

func TestEqualFoldComparesCaseInsensitively(t *testing.T) {
	assert.True(t, equalFold("AbC", "abc"))
	assert.False(t, equalFold("AbC", "abd"))
	assert.False(t, equalFold("Ab", "abc"))
}
