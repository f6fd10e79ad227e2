package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		assert.True(t, Valid(id), id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("fq_")
	assert.True(t, strings.HasPrefix(id, "fq_"))
	assert.Len(t, id, len("fq_")+24)
	assert.False(t, Valid(id))
}
