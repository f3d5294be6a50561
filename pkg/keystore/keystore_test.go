package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set("openai", "sk-test-123"))
	require.NoError(t, s.Set("anthropic", "sk-ant-456"))

	key, ok, err := s.Get("openai")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-test-123", key)

	_, ok, err = s.Get("google")
	require.NoError(t, err)
	assert.False(t, ok)

	vendors, err := s.Vendors()
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "openai"}, vendors)
}

func TestStorePersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Set("openai", "sk-test-123"))

	s2, err := Open(dir)
	require.NoError(t, err)
	key, ok, err := s2.Get("openai")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-test-123", key)
}

func TestStoreDataEncryptedAtRest(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("openai", "sk-super-secret"))

	raw, err := os.ReadFile(filepath.Join(dir, dataFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-super-secret")
	assert.NotContains(t, string(raw), "openai")
}

func TestStoreKeyFilePermissions(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir)
	require.NoError(t, err)

	st, err := os.Stat(filepath.Join(dir, keyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestStoreEmptyKeyRemovesVendor(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set("openai", "sk-test"))
	require.NoError(t, s.Set("openai", ""))

	_, ok, err := s.Get("openai")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreAPIKeyCredentialSource(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("openai", "sk-test"))

	assert.Equal(t, "sk-test", s.APIKey("openai"))
	assert.Empty(t, s.APIKey("anthropic"))
}

func TestSealUnseal(t *testing.T) {
	key := make([]byte, masterKeyLen)
	for i := range key {
		key[i] = byte(i)
	}

	sealed, err := seal(key, []byte("payload"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "payload")

	plain, err := unseal(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(plain))

	// Tampering breaks authentication.
	sealed[len(sealed)-1] ^= 0xff
	_, err = unseal(key, sealed)
	assert.Error(t, err)

	_, err = unseal(key, []byte("short"))
	assert.Error(t, err)
}
