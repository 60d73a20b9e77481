package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/LordWorm1996/DormNet/internal/infrastructure/observability"
	"github.com/LordWorm1996/DormNet/pkg/config"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
	"github.com/LordWorm1996/DormNet/pkg/retry"
)

// Client owns the process-wide PostgreSQL pool.
//
// It is constructed once at startup without touching the network, connects
// lazily on the first Acquire (or eagerly via Connect), and is torn down with
// Close at shutdown. Every store call made through Do or InTx is bounded by
// the configured timeout and guarded by a circuit breaker.
type Client struct {
	dsn     string
	timeout time.Duration
	open    func(driverName, dsn string) (*sql.DB, error)

	// sem guards db and closed; waiters give up when their context ends
	sem     chan struct{}
	db      *sql.DB
	closed  bool
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Metrics
}

// NewClient creates a client for cfg. No connection is made until Connect or Acquire.
func NewClient(cfg *config.DatabaseConfig, timeout time.Duration) *Client {
	c := &Client{
		dsn:     cfg.DatabaseDSN(),
		timeout: timeout,
		open:    sql.Open,
		sem:     make(chan struct{}, 1),
	}
	c.breaker = newBreaker()
	return c
}

// NewClientFromDB wraps an already opened pool (tests, tooling)
func NewClientFromDB(db *sql.DB, timeout time.Duration) *Client {
	c := &Client{db: db, timeout: timeout, sem: make(chan struct{}, 1)}
	c.breaker = newBreaker()
	return c
}

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "postgres",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A caller that went away says nothing about the store's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || !isUnavailable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("store circuit breaker changed state")
		},
	})
}

// SetMetrics enables store call duration recording
func (c *Client) SetMetrics(metrics *observability.Metrics) {
	c.metrics = metrics
}

// Timeout returns the per-call store timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Connect eagerly establishes the pool with the startup backoff
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.acquire(ctx, retry.DefaultConfig())
	return err
}

// Acquire returns the pool, connecting first if needed. It is safe to call
// repeatedly and concurrently; a failed attempt is retried by the next caller.
func (c *Client) Acquire(ctx context.Context) (*sql.DB, error) {
	return c.acquire(ctx, retry.LazyConfig())
}

func (c *Client) lock(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) unlock() { <-c.sem }

// acquire returns the pool it checked while holding the lock, so a concurrent
// Close can never hand a nil pool to the caller
func (c *Client) acquire(ctx context.Context, retryCfg retry.Config) (*sql.DB, error) {
	if err := c.lock(ctx); err != nil {
		return nil, apperrors.NewStoreUnavailableError("gave up waiting for database connection", err)
	}
	defer c.unlock()

	if c.closed {
		return nil, apperrors.NewStoreUnavailableError("database client is closed", nil)
	}
	if c.db != nil {
		return c.db, nil
	}

	db, err := c.open("postgres", c.dsn)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("failed to open database connection", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = retry.Do(ctx, retryCfg, "PostgreSQL",
		func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			return db.PingContext(pingCtx)
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", nextDelay).Msg("PostgreSQL connection attempt failed")
		},
	)
	if err != nil {
		db.Close()
		return nil, apperrors.NewStoreUnavailableError("failed to connect to PostgreSQL", err)
	}

	log.Info().Msg("Successfully connected to PostgreSQL")
	c.db = db
	return db, nil
}

// Do runs fn against the pool with the store timeout and the circuit breaker.
// AppErrors returned by fn pass through untouched; driver failures are
// classified as STORE_UNAVAILABLE or INTERNAL.
func (c *Client) Do(ctx context.Context, operation string, fn func(ctx context.Context, db *sql.DB) error) error {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			observability.RecordDBMetric(ctx, c.metrics, operation, time.Since(start))
		}
	}()

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Failures after the caller's own context ended are reported but not
	// counted by the breaker; only the store timeout below parent counts
	var abandoned error
	_, err := c.breaker.Execute(func() (interface{}, error) {
		err := c.run(ctx, fn)
		if err != nil && parent.Err() != nil {
			abandoned = err
			return nil, nil
		}
		return nil, err
	})
	if abandoned != nil {
		err = abandoned
	}
	return classify(operation, err)
}

func (c *Client) run(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	db, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, db)
}

// InTx runs fn inside a transaction, committing on success and rolling back otherwise
func (c *Client) InTx(ctx context.Context, operation string, opts *sql.TxOptions, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return c.Do(ctx, operation, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, opts)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Warn().Err(rbErr).Str("operation", operation).Msg("rollback failed")
			}
			return err
		}
		return tx.Commit()
	})
}

// Ping verifies the connection to the database
func (c *Client) Ping(ctx context.Context) error {
	return c.Do(ctx, "ping", func(ctx context.Context, db *sql.DB) error {
		return db.PingContext(ctx)
	})
}

// Close closes the pool; later calls fail with STORE_UNAVAILABLE
func (c *Client) Close() error {
	_ = c.lock(context.Background())
	defer c.unlock()

	c.closed = true
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if isUnavailable(err) {
		return apperrors.NewStoreUnavailableError(fmt.Sprintf("store unavailable during %s", operation), err)
	}
	return apperrors.NewInternalError(fmt.Sprintf("store operation %s failed", operation), err)
}

func isUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.IsType(err, apperrors.ErrorTypeStoreUnavailable) {
		return true
	}
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.As(err, &netErr)
}
