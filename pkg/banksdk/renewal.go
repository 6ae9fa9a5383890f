package banksdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/cryptox"
	"golang.org/x/sync/singleflight"
)

// RefreshPath is the renewal exchange endpoint.
const RefreshPath = "/auth/login/refresh/"

// DefaultRenewalTimeout bounds a single renewal exchange.
const DefaultRenewalTimeout = 15 * time.Second

const renewKey = "renew"

// ExpiredFunc is called once per forced logout, after the credentials have
// been cleared.
type ExpiredFunc func(ctx context.Context, cause error)

// Coordinator turns a 401 into one renewal exchange and one replay.
//
// Concurrent 401s share a single exchange: the first becomes the owner and
// the rest wait for its outcome. A request that was sent with an access
// credential already replaced by a finished renewal skips the exchange and
// is replayed directly.
type Coordinator struct {
	exchanger Sender
	store     CredentialStore
	logger    *slog.Logger
	timeout   time.Duration
	onExpired ExpiredFunc

	group     singleflight.Group
	exchanges atomic.Int64
}

type CoordinatorOption func(*Coordinator)

func WithRenewalTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithExpiredHandler(fn ExpiredFunc) CoordinatorOption {
	return func(c *Coordinator) { c.onExpired = fn }
}

// NewCoordinator builds a Coordinator that performs the renewal exchange
// through exchanger, normally the raw Dispatcher.
func NewCoordinator(exchanger Sender, store CredentialStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		exchanger: exchanger,
		store:     store,
		logger:    slog.Default(),
		timeout:   DefaultRenewalTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchanges returns how many renewal exchanges reached the backend.
func (c *Coordinator) Exchanges() int64 { return c.exchanges.Load() }

// Wrap decorates next with 401 handling.
func (c *Coordinator) Wrap(next Sender) Sender {
	return SenderFunc(func(ctx context.Context, req *Request) (*Response, error) {
		resp, err := next.Send(ctx, req)
		// A request is renewed at most once; whatever the replay returns,
		// a second 401 included, is final.
		if req.Anonymous || req.retried || !isUnauthorized(err) {
			return resp, err
		}
		req.retried = true

		if err := c.renew(ctx, req.credential); err != nil {
			return nil, err
		}
		return next.Send(ctx, req)
	})
}

// renew makes sure the stored access credential is newer than sentWith,
// running or joining the exchange when it is not.
func (c *Coordinator) renew(ctx context.Context, sentWith string) error {
	current, err := c.store.Get(ctx, KindAccess)
	if err != nil {
		return fmt.Errorf("failed to read access credential: %w", err)
	}
	if current != "" && current != sentWith {
		return nil
	}

	ch := c.group.DoChan(renewKey, func() (any, error) {
		return nil, c.exchange(ctx, sentWith)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exchange runs at most once per burst of 401s. It is detached from the
// owner's cancellation so one caller giving up cannot log everyone out.
func (c *Coordinator) exchange(ctx context.Context, sentWith string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	// The previous flight may have finished between our read and joining.
	current, err := c.store.Get(ctx, KindAccess)
	if err != nil {
		return c.expire(ctx, fmt.Errorf("failed to read access credential: %w", err))
	}
	if current != "" && current != sentWith {
		return nil
	}

	refresh, err := c.store.Get(ctx, KindRefresh)
	if err != nil {
		return c.expire(ctx, fmt.Errorf("failed to read refresh credential: %w", err))
	}
	if refresh == "" {
		return c.expire(ctx, ErrNoRefreshCredential)
	}

	req, err := NewJSONRequest(http.MethodPost, RefreshPath, refreshRequest{Refresh: refresh})
	if err != nil {
		return c.expire(ctx, err)
	}
	req.Anonymous = true

	c.exchanges.Add(1)
	resp, err := c.exchanger.Send(ctx, req)
	if err != nil {
		return c.expire(ctx, fmt.Errorf("renewal exchange failed: %w", err))
	}

	var pair TokenPair
	if err := resp.Decode(&pair); err != nil {
		return c.expire(ctx, err)
	}
	if pair.Access == "" {
		return c.expire(ctx, errors.New("renewal response missing access credential"))
	}

	rotated := pair.Refresh != ""
	if !rotated {
		pair.Refresh = refresh
	}
	if err := c.store.SetPair(ctx, pair.Access, pair.Refresh); err != nil {
		return c.expire(ctx, fmt.Errorf("failed to store renewed credentials: %w", err))
	}

	c.logger.InfoContext(ctx, "credentials renewed",
		"access_fp", cryptox.Redact(pair.Access),
		"rotated", rotated,
	)
	return nil
}

// expire clears both credentials, notifies the session, and returns the
// error every waiting caller receives.
func (c *Coordinator) expire(ctx context.Context, cause error) error {
	ctx = context.WithoutCancel(ctx)

	if err := c.store.Clear(ctx); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear credentials", "err", err)
	}
	c.logger.WarnContext(ctx, "session expired", "cause", cause)

	if c.onExpired != nil {
		c.onExpired(ctx, cause)
	}
	return &SessionExpiredError{Cause: cause}
}
