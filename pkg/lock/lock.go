package lock

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/foomo/objectregistry/pkg/metrics"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// DefaultTTL is used as lock lifetime when neither a ttl nor a positive
	// timeout is given.
	DefaultTTL = 30 * time.Second
	// MaxAttempts caps the acquisition loop independently of the deadline.
	MaxAttempts = 1000
	// MaxReleaseAttempts caps the compare-and-swap loop of Release.
	MaxReleaseAttempts = 10

	modeShared    = "shared"
	modeExclusive = "exclusive"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	// ErrGenerationMismatch is returned by a Store when a conditional write
	// or delete lost against a concurrent writer.
	ErrGenerationMismatch = errors.New("generation mismatch")
	// ErrConflict marks a shared/exclusive mode conflict.
	ErrConflict = errors.New("lock mode conflict")
)

// ConflictError is returned by Acquire when an exclusive lock is requested
// while the key is held as shared. It is not a transient race.
type ConflictError struct {
	Key       string
	Held      string
	Requested string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("lock %q is held as %s, cannot acquire %s", e.Key, e.Held, e.Requested)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Store persists lock records with compare-and-swap semantics on an opaque
// generation token.
type Store interface {
	// ReadRecord returns the record bytes and their generation.
	// Returns os.ErrNotExist if there is no record.
	ReadRecord(ctx context.Context, key string) ([]byte, string, error)
	// WriteRecord writes data only if the stored generation still equals
	// generation. An empty generation means the record must not exist.
	WriteRecord(ctx context.Context, key string, data []byte, generation string) error
	// DeleteRecord removes the record only if its generation equals
	// generation. A missing record is not an error.
	DeleteRecord(ctx context.Context, key string, generation string) error
}

type (
	Manager struct {
		l          *zap.Logger
		store      Store
		now        func() time.Time
		newBackOff func() backoff.BackOff
	}
	Option func(*Manager)

	acquireOptions struct {
		ttl time.Duration
	}
	AcquireOption func(*acquireOptions)
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func New(l *zap.Logger, store Store, opts ...Option) *Manager {
	inst := &Manager{
		l:          l.Named("lock"),
		store:      store,
		now:        time.Now,
		newBackOff: DefaultBackOff,
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// DefaultBackOff returns the exponential backoff used between attempts:
// 25ms initial interval growing by 1.5 up to 1s, with +/-50% jitter.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.Multiplier = 1.5
	b.RandomizationFactor = 0.5
	b.MaxInterval = time.Second
	b.Reset()
	return b
}

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func WithClock(v func() time.Time) Option {
	return func(o *Manager) {
		o.now = v
	}
}

func WithBackOff(v func() backoff.BackOff) Option {
	return func(o *Manager) {
		o.newBackOff = v
	}
}

// WithTTL sets how long the lock stays valid if it is never released.
func WithTTL(v time.Duration) AcquireOption {
	return func(o *acquireOptions) {
		o.ttl = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Acquire tries to take the lock on key for holderID. It retries on lost
// races and on live exclusive holders until timeout elapses and then
// returns false. A live shared lock requested exclusively fails fast with a
// *ConflictError.
func (m *Manager) Acquire(ctx context.Context, key, holderID string, timeout time.Duration, shared bool, opts ...AcquireOption) (bool, error) {
	o := acquireOptions{ttl: timeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = DefaultTTL
	}

	mode := modeName(shared)
	l := m.l.With(zap.String("key", key), zap.String("holder", holderID), zap.String("mode", mode))
	deadline := m.now().Add(timeout)
	b := m.newBackOff()

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		metrics.LockAcquireAttempts.WithLabelValues(mode).Inc()

		acquired, retry, err := m.tryAcquire(ctx, key, holderID, o.ttl, shared)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				metrics.LockConflictCounter.WithLabelValues(mode).Inc()
			}
			return false, err
		}
		if acquired {
			l.Debug("lock acquired", zap.Int("attempt", attempt))
			metrics.LockAcquiredCounter.WithLabelValues(mode).Inc()
			return true, nil
		}
		if !retry {
			break
		}

		remaining := deadline.Sub(m.now())
		if remaining <= 0 {
			break
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop || wait > remaining {
			wait = remaining
		}
		l.Debug("lock busy, backing off", zap.Int("attempt", attempt), zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	l.Info("lock acquisition timed out", zap.Duration("timeout", timeout))
	metrics.LockTimeoutCounter.WithLabelValues(mode).Inc()
	return false, nil
}

// Check reports whether key is held by a live holder. Expired records count
// as unlocked and are left in place.
func (m *Manager) Check(ctx context.Context, key string) (bool, string, error) {
	rec, _, err := m.read(ctx, key)
	if err != nil {
		return false, "", err
	}
	now := m.now()
	if !rec.Live(now) {
		return false, "", nil
	}
	rec.prune(now)
	return true, rec.LockID, nil
}

// Release removes holderID from the lock on key. Releasing a lock that is
// not held by holderID is a no-op.
func (m *Manager) Release(ctx context.Context, key, holderID string) error {
	b := m.newBackOff()
	for attempt := 1; attempt <= MaxReleaseAttempts; attempt++ {
		rec, generation, err := m.read(ctx, key)
		if err != nil {
			return err
		}
		now := m.now()
		if !rec.HeldBy(holderID, now) {
			m.l.Debug("release of lock not held", zap.String("key", key), zap.String("holder", holderID))
			return nil
		}

		rec.prune(now)
		rec.withoutHolder(holderID)
		if len(rec.Holders) == 0 {
			err = m.store.DeleteRecord(ctx, key, generation)
		} else {
			var data []byte
			if data, err = json.Marshal(rec); err != nil {
				return errors.Wrap(err, "failed to encode lock record")
			}
			err = m.store.WriteRecord(ctx, key, data, generation)
		}
		if err == nil {
			m.l.Debug("lock released", zap.String("key", key), zap.String("holder", holderID))
			return nil
		}
		if !errors.Is(err, ErrGenerationMismatch) {
			return err
		}
		metrics.LockGenerationMismatchCounter.WithLabelValues().Inc()

		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return errors.Errorf("failed to release lock %q after %d attempts", key, MaxReleaseAttempts)
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

// tryAcquire makes a single attempt. retry is true when the caller should
// back off and try again.
func (m *Manager) tryAcquire(ctx context.Context, key, holderID string, ttl time.Duration, shared bool) (acquired, retry bool, err error) {
	rec, generation, err := m.read(ctx, key)
	if err != nil {
		return false, false, err
	}

	now := m.now()
	expiresAt := now.Add(ttl)

	var next *Record
	switch {
	case !rec.Live(now):
		if rec != nil {
			m.l.Debug("overwriting expired lock", zap.String("key", key), zap.String("previous", rec.LockID))
		}
		next = newRecord(holderID, expiresAt, shared)
	case rec.Shared && !shared:
		return false, false, &ConflictError{Key: key, Held: modeShared, Requested: modeExclusive}
	case rec.Shared && shared:
		rec.prune(now)
		rec.withHolder(holderID, expiresAt)
		next = rec
	case !rec.Shared && !shared && rec.HeldBy(holderID, now):
		next = newRecord(holderID, expiresAt, false)
	default:
		return false, true, nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		return false, false, errors.Wrap(err, "failed to encode lock record")
	}
	if err := m.store.WriteRecord(ctx, key, data, generation); err != nil {
		if errors.Is(err, ErrGenerationMismatch) {
			metrics.LockGenerationMismatchCounter.WithLabelValues().Inc()
			return false, true, nil
		}
		return false, false, err
	}
	return true, false, nil
}

// read returns a nil record and empty generation when no record exists.
// Undecodable records are returned as expired so they can be reclaimed.
func (m *Manager) read(ctx context.Context, key string) (*Record, string, error) {
	data, generation, err := m.store.ReadRecord(ctx, key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", nil
	} else if err != nil {
		return nil, "", err
	}
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		m.l.Warn("ignoring undecodable lock record", zap.String("key", key), zap.Error(err))
		return &Record{Holders: map[string]float64{}}, generation, nil
	}
	return rec, generation, nil
}

func modeName(shared bool) string {
	if shared {
		return modeShared
	}
	return modeExclusive
}
