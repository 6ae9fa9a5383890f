package cryptox_test

import (
	"path/filepath"
	"testing"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func newSealer(t *testing.T, material string, salt []byte) *cryptox.Sealer {
	t.Helper()
	s, err := cryptox.NewSealer([]byte(material), salt)
	require.NoError(t, err)
	return s
}

func TestSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	salt, err := cryptox.NewSalt()
	require.NoError(t, err)
	s := newSealer(t, "master-key", salt)

	plaintext := []byte("eyJhbGciOiJIUzI1NiJ9.payload.sig")
	a, err := s.Seal(plaintext, []byte("access"))
	require.NoError(t, err)
	b, err := s.Seal(plaintext, []byte("access"))
	require.NoError(t, err)
	require.NotEqual(t, a, b, "nonce must differ per seal")
	require.NotContains(t, string(a), string(plaintext))

	got, err := s.Open(a, []byte("access"))
	require.NoError(t, err)
	require.Equal(t, plaintext, got)

	// Same material and salt derive the same key.
	got, err = newSealer(t, "master-key", salt).Open(b, []byte("access"))
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOpenFailures(t *testing.T) {
	t.Parallel()

	salt, err := cryptox.NewSalt()
	require.NoError(t, err)
	s := newSealer(t, "master-key", salt)

	sealed, err := s.Seal([]byte("secret"), []byte("refresh"))
	require.NoError(t, err)

	t.Run("wrong slot", func(t *testing.T) {
		_, err := s.Open(sealed, []byte("access"))
		require.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := newSealer(t, "other-key", salt).Open(sealed, []byte("refresh"))
		require.Error(t, err)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := s.Open(sealed[:4], []byte("refresh"))
		require.ErrorIs(t, err, cryptox.ErrSealedTooShort)
	})
}

func TestNewSealerRejectsEmptyInputs(t *testing.T) {
	t.Parallel()

	_, err := cryptox.NewSealer(nil, []byte("salt"))
	require.Error(t, err)
	_, err = cryptox.NewSealer([]byte("key"), nil)
	require.Error(t, err)
}

func TestLoadMasterKey(t *testing.T) {
	t.Parallel()

	t.Run("explicit value wins", func(t *testing.T) {
		key, err := cryptox.LoadMasterKey("explicit", filepath.Join(t.TempDir(), "unused"))
		require.NoError(t, err)
		require.Equal(t, []byte("explicit"), key)
	})

	t.Run("key file created once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "master.key")

		first, err := cryptox.LoadMasterKey("", path)
		require.NoError(t, err)
		require.NotEmpty(t, first)

		second, err := cryptox.LoadMasterKey("", path)
		require.NoError(t, err)
		require.Equal(t, first, second)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := cryptox.LoadMasterKey("", "")
		require.Error(t, err)
	})
}
