package sealer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewFromHex(strings.Repeat("ab", 32))
	require.NoError(t, err)
	return s
}

func TestSealer(t *testing.T) {
	t.Run("round trips payload with associated data", func(t *testing.T) {
		s := testSealer(t)
		sealed, err := s.Seal([]byte(`{"name":"diploma"}`), []byte("R1"))
		require.NoError(t, err)

		opened, err := s.Open(sealed, []byte("R1"))
		require.NoError(t, err)
		assert.Equal(t, `{"name":"diploma"}`, string(opened))
	})

	t.Run("uses a fresh nonce per seal", func(t *testing.T) {
		s := testSealer(t)
		a, err := s.Seal([]byte("same"), nil)
		require.NoError(t, err)
		b, err := s.Seal([]byte("same"), nil)
		require.NoError(t, err)
		assert.False(t, bytes.Equal(a, b))
	})

	t.Run("rejects payload bound to another row", func(t *testing.T) {
		s := testSealer(t)
		sealed, err := s.Seal([]byte("secret"), []byte("R1"))
		require.NoError(t, err)

		_, err = s.Open(sealed, []byte("R2"))
		assert.ErrorIs(t, err, ErrAuthenticationBad)
	})

	t.Run("empty payload seals to nil", func(t *testing.T) {
		s := testSealer(t)
		sealed, err := s.Seal(nil, nil)
		require.NoError(t, err)
		assert.Nil(t, sealed)

		opened, err := s.Open(nil, nil)
		require.NoError(t, err)
		assert.Nil(t, opened)
	})

	t.Run("truncated payload is malformed", func(t *testing.T) {
		s := testSealer(t)
		_, err := s.Open([]byte("short"), nil)
		assert.ErrorIs(t, err, ErrMalformedSealed)
	})

	t.Run("short key is rejected", func(t *testing.T) {
		_, err := New([]byte("too-short"))
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}
