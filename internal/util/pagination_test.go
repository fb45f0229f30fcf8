package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	from, limit := Calculate(0, 0)
	assert.Equal(t, 0, from)
	assert.Equal(t, 20, limit)

	from, limit = Calculate(3, 25)
	assert.Equal(t, 50, from)
	assert.Equal(t, 25, limit)

	from, limit = Calculate(2, 1000)
	assert.Equal(t, 20, from)
	assert.Equal(t, 20, limit)
}
