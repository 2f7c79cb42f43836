package crypto

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	addr := key.PubKey().Address()
	require.Equal(t, AccountPrefix, addr.Prefix())

	decoded, err := DecodeAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr.Bytes(), decoded.Bytes())

	canonical, err := ParseAccount("  " + addr.String() + " ")
	require.NoError(t, err)
	require.Equal(t, addr.String(), canonical)
}

func TestParseAccountRejects(t *testing.T) {
	other, err := NewAddress("nhb", make([]byte, 20))
	require.NoError(t, err)
	_, err = ParseAccount(other.String())
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ParseAccount("alice")
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NewAddress(AccountPrefix, make([]byte, 19))
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestKeystoreRoundTrip(t *testing.T) {
	scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	t.Cleanup(func() { scryptN, scryptP = keystore.StandardScryptN, keystore.StandardScryptP })

	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "owner.json")
	require.NoError(t, SaveToKeystore(path, key, "hunter2"))

	loaded, err := LoadFromKeystore(path, "hunter2")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)

	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), restored.PubKey().Address().String())
}
