package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/whitemax/maxd/internal/bus"
	"github.com/whitemax/maxd/internal/cred"
	"github.com/whitemax/maxd/internal/mx"
	"github.com/whitemax/maxd/internal/status"
)

// AuthChange is the bus payload for authentication transitions.
type AuthChange struct {
	Authenticated bool
	UserID        int64
}

// Controller owns the credential lifecycle: it is the only component that
// reads or writes the credential store. The façade stays credential-blind.
type Controller struct {
	client  *mx.Client
	store   *cred.Store
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	workDir string
}

// NewController wires the session controller for one profile.
func NewController(client *mx.Client, store *cred.Store, machine *status.Machine, b *bus.Bus, logger *zap.Logger, workDir string) *Controller {
	return &Controller{
		client:  client,
		store:   store,
		machine: machine,
		bus:     b,
		logger:  logger,
		workDir: workDir,
	}
}

// Restore creates the runtime session and tries to resume with the persisted
// credential. No credential, or any failure to resume, lands in
// AUTH_REQUIRED; a failed resume also wipes the store so a stale token is
// never retried forever. Only a session-creation error is fatal.
func (c *Controller) Restore(ctx context.Context) error {
	token, _, err := c.store.GetString(cred.KeyAuthToken)
	if err != nil {
		return err
	}
	phone, _, err := c.store.GetString(cred.KeyPhone)
	if err != nil {
		return err
	}

	if err := c.client.CreateSession(ctx, phone, c.workDir, token); err != nil {
		return err
	}

	if token == "" {
		c.logger.Info("no stored credential, login required")
		return c.requireAuth()
	}

	if userID, ok, _ := c.store.GetInt64(cred.KeyUserID); ok {
		c.client.SetSelfID(userID)
	}

	res, err := c.client.StartClient(ctx, true)
	if err != nil || !res.Authenticated {
		c.logger.Warn("stored credential rejected, wiping", zap.Error(err))
		if werr := c.store.ClearAll(); werr != nil {
			return werr
		}
		c.client.SetSelfID(0)
		return c.requireAuth()
	}

	if res.Me != nil {
		if err := c.store.SetInt64(cred.KeyUserID, res.Me.ID); err != nil {
			return err
		}
	}
	if err := c.machine.Transition(status.Authenticated); err != nil {
		return err
	}
	c.logger.Info("session restored", zap.Int64("user_id", c.client.SelfID()))
	c.bus.Publish(bus.KindAuthChanged, AuthChange{Authenticated: true, UserID: c.client.SelfID()})
	return nil
}

// CompleteLogin exchanges the SMS code for a token, persists the credential
// triple and marks the session authenticated.
func (c *Controller) CompleteLogin(ctx context.Context, tempToken, code string) error {
	res, err := c.client.LoginWithCode(ctx, tempToken, code)
	if err != nil {
		return err
	}

	if err := c.store.SetString(cred.KeyAuthToken, res.Token); err != nil {
		return err
	}
	if res.Phone != "" {
		if err := c.store.SetString(cred.KeyPhone, res.Phone); err != nil {
			return err
		}
	}
	if res.Me != nil {
		if err := c.store.SetInt64(cred.KeyUserID, res.Me.ID); err != nil {
			return err
		}
	}
	if err := c.machine.Transition(status.Authenticated); err != nil {
		return err
	}
	c.logger.Info("login completed", zap.Int64("user_id", c.client.SelfID()))
	c.bus.Publish(bus.KindAuthChanged, AuthChange{Authenticated: true, UserID: c.client.SelfID()})
	return nil
}

// Logout stops the client, wipes the credential store and returns to
// AUTH_REQUIRED. A stop failure is logged, not fatal: the wipe must happen
// regardless.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.client.StopClient(ctx); err != nil {
		c.logger.Warn("stop on logout failed", zap.Error(err))
	}
	if err := c.store.ClearAll(); err != nil {
		return err
	}
	c.client.SetSelfID(0)
	return c.requireAuth()
}

func (c *Controller) requireAuth() error {
	if err := c.machine.Transition(status.AuthRequired); err != nil {
		return err
	}
	c.bus.Publish(bus.KindAuthChanged, AuthChange{Authenticated: false})
	return nil
}
