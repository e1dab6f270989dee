package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("https://www.linkedin.com/jobs/view/123"))
	require.NoError(t, err)
	assert.Len(t, got, 64)

	again, err := h.Hash([]byte("https://www.linkedin.com/jobs/view/123"))
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestHasherKnownDigest(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
}

func TestHasherDistinguishesInputs(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("nurse|acme|austin"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("nurse|acme|dallas"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
