package otp

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_CodesAreSixDigitsInRange(t *testing.T) {
	gen := NewGenerator()

	seen := make(map[string]struct{})
	for range 2000 {
		code, err := gen.Generate()
		require.NoError(t, err)
		require.Len(t, code, 6)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, minCode)
		assert.LessOrEqual(t, n, maxCode)

		seen[code] = struct{}{}
	}

	// 2000 draws from 900000 values should be nearly all distinct.
	assert.Greater(t, len(seen), 1900)
}
