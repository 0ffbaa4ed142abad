package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tantalor/netlify-file-server/pkg/util"
)

func TestGenerateAPIKey(t *testing.T) {
	t.Run("keys are url safe", func(t *testing.T) {
		key, err := util.GenerateAPIKey()
		require.NoError(t, err)
		assert.Len(t, key, 22) // 16 bytes, unpadded base64
		assert.NotContains(t, key, "+")
		assert.NotContains(t, key, "/")
		assert.NotContains(t, key, "=")
	})

	t.Run("keys do not repeat", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 10_000; i++ {
			key, err := util.GenerateAPIKey()
			require.NoError(t, err)
			assert.False(t, seen[key], "key repeated after %d draws", i)
			seen[key] = true
		}
	})
}
