//go:build !windows

package mx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeHost writes a shell script that answers every request line with a
// fixed envelope, mimicking the runtime host's line protocol.
func fakeHost(t *testing.T, envelope string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "maxrt-fake")
	script := "#!/bin/sh\nwhile read line; do echo '" + envelope + "'; done\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

func TestBridgeInvokeRoundtrip(t *testing.T) {
	host := fakeHost(t, `{"success": true, "pong": true}`)
	b, err := NewBridge(host, t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	raw, err := b.Invoke(OpStopClient, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"success": true, "pong": true}`, raw)

	raw, err = b.Invoke(OpGetChats, map[string]any{"limit": 10})
	require.NoError(t, err)
	require.Contains(t, raw, `"success"`)

	require.NoError(t, b.Close())
}

func TestBridgeHostExit(t *testing.T) {
	// A host that exits immediately leaves nothing to read.
	path := filepath.Join(t.TempDir(), "maxrt-dead")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o700))

	b, err := NewBridge(path, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Invoke(OpStopClient, nil)
	require.Error(t, err)
}

func TestBridgeMissingBinary(t *testing.T) {
	_, err := NewBridge(filepath.Join(t.TempDir(), "no-such-binary"), t.TempDir(), zap.NewNop())
	require.Error(t, err)
}
