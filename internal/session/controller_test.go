package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whitemax/maxd/internal/bus"
	"github.com/whitemax/maxd/internal/cache"
	"github.com/whitemax/maxd/internal/cred"
	"github.com/whitemax/maxd/internal/executor"
	"github.com/whitemax/maxd/internal/mx"
	"github.com/whitemax/maxd/internal/status"
)

// scriptedRuntime answers ops with canned envelopes.
type scriptedRuntime struct {
	mu        sync.Mutex
	responses map[string]string
}

func (r *scriptedRuntime) script(op, response string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[op] = response
}

func (r *scriptedRuntime) Invoke(op string, args map[string]any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if resp, ok := r.responses[op]; ok {
		return resp, nil
	}
	return `{"success": true}`, nil
}

type controllerEnv struct {
	ctrl    *Controller
	rt      *scriptedRuntime
	store   *cred.Store
	machine *status.Machine
	client  *mx.Client
}

func newControllerEnv(t *testing.T) *controllerEnv {
	t.Helper()
	rt := &scriptedRuntime{responses: map[string]string{}}
	exec := executor.New(zap.NewNop())
	t.Cleanup(exec.Close)

	b := bus.New()
	machine := status.NewMachine(b)
	client := mx.NewClient(rt, exec, cache.New(), b, machine, zap.NewNop())

	db, err := cred.Open(filepath.Join(t.TempDir(), "cred.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Migrate()
	require.NoError(t, err)
	store := cred.NewStore(db)

	ctrl := NewController(client, store, machine, b, zap.NewNop(), t.TempDir())
	return &controllerEnv{ctrl: ctrl, rt: rt, store: store, machine: machine, client: client}
}

func TestRestoreWithoutCredential(t *testing.T) {
	e := newControllerEnv(t)

	require.NoError(t, e.ctrl.Restore(context.Background()))
	require.Equal(t, status.AuthRequired, e.machine.Current())
}

func TestRestoreWithValidCredential(t *testing.T) {
	e := newControllerEnv(t)
	require.NoError(t, e.store.SetString(cred.KeyAuthToken, "tok"))
	require.NoError(t, e.store.SetString(cred.KeyPhone, "+7900"))
	e.rt.script("start_client",
		`{"success": true, "authenticated": true, "me": {"id": 100, "first_name": "Ann"}}`)

	require.NoError(t, e.ctrl.Restore(context.Background()))
	require.Equal(t, status.Authenticated, e.machine.Current())
	require.Equal(t, int64(100), e.client.SelfID())

	userID, ok, err := e.store.GetInt64(cred.KeyUserID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(100), userID)
}

func TestRestoreRejectedCredentialWipesStore(t *testing.T) {
	e := newControllerEnv(t)
	require.NoError(t, e.store.SetString(cred.KeyAuthToken, "stale"))
	require.NoError(t, e.store.SetString(cred.KeyPhone, "+7900"))
	require.NoError(t, e.store.SetInt64(cred.KeyUserID, 100))
	e.rt.script("start_client", `{"success": false, "error": "token revoked"}`)

	require.NoError(t, e.ctrl.Restore(context.Background()))
	require.Equal(t, status.AuthRequired, e.machine.Current())
	require.Zero(t, e.client.SelfID())

	// The whole triple is gone, not just the token.
	for _, key := range []string{cred.KeyAuthToken, cred.KeyPhone, cred.KeyUserID} {
		_, ok, err := e.store.GetString(key)
		require.NoError(t, err)
		require.False(t, ok, "%s survived a rejected restore", key)
	}
}

func TestRestoreModuleUnavailableIsFatal(t *testing.T) {
	e := newControllerEnv(t)
	e.rt.script("create_session", `{"success": false, "error": "native module not available"}`)

	require.Error(t, e.ctrl.Restore(context.Background()))
	require.Equal(t, status.NoModule, e.machine.Current())
}

func TestCompleteLoginPersistsTriple(t *testing.T) {
	e := newControllerEnv(t)
	require.NoError(t, e.ctrl.Restore(context.Background())) // lands in AUTH_REQUIRED
	e.rt.script("login_with_code", `{"success": true, "token": "fresh", "phone": "+7900",
		"me": {"id": 100, "first_name": "Ann"}}`)

	require.NoError(t, e.ctrl.CompleteLogin(context.Background(), "tt", "1234"))
	require.Equal(t, status.Authenticated, e.machine.Current())

	token, ok, _ := e.store.GetString(cred.KeyAuthToken)
	require.True(t, ok)
	require.Equal(t, "fresh", token)
	phone, _, _ := e.store.GetString(cred.KeyPhone)
	require.Equal(t, "+7900", phone)
	userID, _, _ := e.store.GetInt64(cred.KeyUserID)
	require.Equal(t, int64(100), userID)
}

func TestLogoutWipesAndRequiresAuth(t *testing.T) {
	e := newControllerEnv(t)
	require.NoError(t, e.store.SetString(cred.KeyAuthToken, "tok"))
	e.rt.script("start_client", `{"success": true, "authenticated": true}`)
	require.NoError(t, e.ctrl.Restore(context.Background()))
	require.Equal(t, status.Authenticated, e.machine.Current())

	require.NoError(t, e.ctrl.Logout(context.Background()))
	require.Equal(t, status.AuthRequired, e.machine.Current())
	_, ok, _ := e.store.GetString(cred.KeyAuthToken)
	require.False(t, ok)
}
