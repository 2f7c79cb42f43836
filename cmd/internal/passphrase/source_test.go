package passphrase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestSourcePrefersEnvironment(t *testing.T) {
	src := NewSource("LENDCTL_PASS", "keystore passphrase")
	src.lookup = fakeEnv(map[string]string{"LENDCTL_PASS": " hunter2 "})
	src.isTerminal = func() bool { t.Fatal("terminal must not be consulted"); return false }

	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, " hunter2 ", value)
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	src := NewSource("LENDCTL_PASS", "")
	src.lookup = fakeEnv(map[string]string{"LENDCTL_PASS": "  "})
	_, err := src.Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestSourcePromptsOnceOnTerminal(t *testing.T) {
	reads := 0
	src := NewSource("", "hmac secret")
	src.lookup = fakeEnv(nil)
	src.isTerminal = func() bool { return true }
	src.read = func() ([]byte, error) {
		reads++
		return []byte("secret"), nil
	}

	for i := 0; i < 2; i++ {
		value, err := src.Get()
		require.NoError(t, err)
		require.Equal(t, "secret", value)
	}
	require.Equal(t, 1, reads)
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("LENDCTL_PASS", "keystore passphrase")
	src.lookup = fakeEnv(nil)
	src.isTerminal = func() bool { return false }
	_, err := src.Get()
	require.ErrorContains(t, err, "set LENDCTL_PASS")
}
