// Package refresh coordinates credential refresh across concurrent callers.
//
// At most one call to the refresh endpoint is in flight at any time. Callers that
// observe an expired access token while a refresh is running wait for that refresh
// instead of starting their own, and callers that observe expiry after a refresh has
// already committed retry straight away with the new token.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/campus-auth-client/apiclient"
	"github.com/jrsteele09/campus-auth-client/authmodel"
	"github.com/jrsteele09/campus-auth-client/credentials"
	"github.com/jrsteele09/campus-auth-client/internal/errors"
)

// ErrSessionExpired is returned to every waiter when the refresh endpoint rejects the
// stored refresh token or cannot be reached. The credential store is cleared by then.
var ErrSessionExpired = errors.ErrSessionExpired

const flightKey = "refresh"

type State int

const (
	Idle State = iota
	Refreshing
	// Settled is transient: the cycle has committed and waiters are being released.
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	case Settled:
		return "settled"
	}
	return "unknown"
}

// Executor is the part of apiclient.Executor the coordinator needs.
type Executor interface {
	Execute(ctx context.Context, req apiclient.Request) (json.RawMessage, error)
}

// Store is the part of credentials.Store the coordinator needs.
type Store interface {
	Tokens() (credentials.Pair, bool)
	Rotate(p credentials.Pair) bool
	Clear()
}

// FailureFunc is told about every refresh failure that tore down a stored session,
// after the store has been cleared.
type FailureFunc func(err error)

type Coordinator struct {
	exec  Executor
	store Store
	log   zerolog.Logger

	group singleflight.Group

	// lock orders generation checks, flight joins and commits.
	lock       sync.Mutex
	generation uint64
	state      State
	onFailure  FailureFunc
}

type Option func(*Coordinator)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

func WithFailureHandler(fn FailureFunc) Option {
	return func(c *Coordinator) { c.onFailure = fn }
}

func NewCoordinator(exec Executor, store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		exec:  exec,
		store: store,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generation identifies the credentials currently in the store. Callers read it before
// sending a request and pass it to Refresh if that request reports expiry.
func (c *Coordinator) Generation() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.generation
}

func (c *Coordinator) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Advance applies a user initiated change to the credentials (login, logout) and
// starts a new generation, so requests sent with the previous credentials never
// trigger a refresh of the new ones.
func (c *Coordinator) Advance(mutate func()) {
	c.lock.Lock()
	defer c.lock.Unlock()
	mutate()
	c.generation++
}

// Refresh obtains fresh credentials for a caller whose request, sent at generation
// seen, came back expired. A nil return means the caller should retry its request
// once. Errors wrap ErrSessionExpired, or are ctx.Err() if the caller's own context
// ends first; the refresh itself is not cancelled by any single caller.
func (c *Coordinator) Refresh(ctx context.Context, seen uint64) error {
	c.lock.Lock()
	if c.generation != seen {
		c.lock.Unlock()
		if _, ok := c.store.Tokens(); ok {
			return nil
		}
		return ErrSessionExpired
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		return nil, c.refresh(flightCtx)
	})
	c.lock.Unlock()

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refresh runs once per cycle, inside the singleflight group.
func (c *Coordinator) refresh(ctx context.Context) error {
	c.lock.Lock()
	c.state = Refreshing
	startGen := c.generation
	_, hadSession := c.store.Tokens()
	c.lock.Unlock()

	pair, err := c.callRefreshEndpoint(ctx)

	c.lock.Lock()
	var onFailure FailureFunc
	switch {
	case c.generation != startGen || (err == nil && !c.store.Rotate(pair)):
		// A login or logout replaced the session while the refresh was in flight.
		// Its credentials win; the waiters belong to the old session.
		err = fmt.Errorf("%w: session replaced during refresh", ErrSessionExpired)
	case err != nil:
		c.store.Clear()
		c.generation++
		if hadSession {
			onFailure = c.onFailure
		}
	default:
		c.generation++
	}
	c.state = Settled
	gen := c.generation
	// Callers that see the committed generation expire start a new cycle instead of
	// joining this one.
	c.group.Forget(flightKey)
	c.lock.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Uint64("generation", gen).Msg("credential refresh failed")
		if onFailure != nil {
			onFailure(err)
		}
	} else {
		c.log.Info().Uint64("generation", gen).Msg("credentials refreshed")
	}

	c.lock.Lock()
	if c.state == Settled {
		c.state = Idle
	}
	c.lock.Unlock()
	return err
}

func (c *Coordinator) callRefreshEndpoint(ctx context.Context) (credentials.Pair, error) {
	current, ok := c.store.Tokens()
	if !ok || current.RefreshToken == "" {
		return credentials.Pair{}, fmt.Errorf("%w: %w", ErrSessionExpired, errors.ErrNoRefreshToken)
	}

	raw, err := c.exec.Execute(ctx, apiclient.Request{
		Method:       http.MethodPost,
		Path:         authmodel.PathRefresh,
		Body:         authmodel.RefreshRequest{RefreshToken: current.RefreshToken},
		RequiresAuth: false,
	})
	if err != nil {
		return credentials.Pair{}, fmt.Errorf("%w: refresh call: %w", ErrSessionExpired, err)
	}

	resp, err := apiclient.Decode[authmodel.RefreshResponse](raw)
	if err != nil {
		return credentials.Pair{}, fmt.Errorf("%w: refresh response: %w", ErrSessionExpired, err)
	}
	if !resp.Success || resp.AccessToken == "" {
		reason := errors.ErrRefreshRejected
		if resp.Error != "" {
			reason = errors.New(resp.Error)
		}
		return credentials.Pair{}, fmt.Errorf("%w: %w", ErrSessionExpired, reason)
	}

	next := resp.Pair()
	if next.RefreshToken == "" {
		// Backends that do not rotate refresh tokens omit it.
		next.RefreshToken = current.RefreshToken
	}
	return next, nil
}
