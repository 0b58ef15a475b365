package keyring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/appconnect/internal/cryptox"
)

func TestOpen_CreatesSecretOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "device.secret")

	kr, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, kr.Key(), cryptox.KeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(secretSize), info.Size())
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestOpen_DerivesSameKeyAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.secret")

	first, err := Open(path)
	require.NoError(t, err)
	second, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, first.Key(), second.Key())
}

func TestOpen_RejectsWrongSizeSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.secret")
	require.NoError(t, os.WriteFile(path, []byte("too short"), 0o600))

	_, err := Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bytes")
}

func TestFromSecret_MatchesOpen(t *testing.T) {
	secret := cryptox.GenerateRandByteArray(secretSize)
	path := filepath.Join(t.TempDir(), "device.secret")
	require.NoError(t, os.WriteFile(path, secret, 0o600))

	opened, err := Open(path)
	require.NoError(t, err)
	derived, err := FromSecret(secret)
	require.NoError(t, err)

	assert.Equal(t, opened.Key(), derived.Key())
}

func TestFromSecret_RejectsWrongSize(t *testing.T) {
	_, err := FromSecret([]byte("short"))
	require.Error(t, err)
}

func TestKey_ReturnsCopy(t *testing.T) {
	kr, err := FromSecret(cryptox.GenerateRandByteArray(secretSize))
	require.NoError(t, err)

	k1 := kr.Key()
	k1[0] ^= 0xFF
	assert.NotEqual(t, k1, kr.Key())
}
