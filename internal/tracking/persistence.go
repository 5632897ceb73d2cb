package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/storage"
)

// DefaultNamespace prefixes every tracking slot key.
const DefaultNamespace = "curator.tracking"

// DefaultTTL bounds how long a persisted descriptor may be resumed.
const DefaultTTL = 10 * time.Minute

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// TrackingStore reads and writes the single descriptor slot of one kind.
type TrackingStore interface {
	// Get returns the live descriptor or nil when none is usable.
	Get(ctx context.Context) (*Descriptor, error)
	// Set overwrites the slot.
	Set(ctx context.Context, d Descriptor) error
	// Clear erases the slot.
	Clear(ctx context.Context) error
}

// PersistenceConfig configures a Persistence.
type PersistenceConfig struct {
	Namespace string
	Kind      string
	TTL       time.Duration
	Clock     Clock
	Logger    *zap.Logger
}

// Persistence stores a kind's descriptor as JSON in a storage.KV slot.
type Persistence struct {
	kv     storage.KV
	key    string
	ttl    time.Duration
	clock  Clock
	logger *zap.Logger
}

// NewPersistence validates cfg and binds the slot key "<namespace>.<kind>".
func NewPersistence(kv storage.KV, cfg PersistenceConfig) (*Persistence, error) {
	if kv == nil {
		return nil, errors.New("tracking: kv store is required")
	}
	if strings.TrimSpace(cfg.Kind) == "" {
		return nil, errors.New("tracking: kind is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockFunc(func() time.Time { return time.Now().UTC() })
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	key := cfg.Namespace + "." + cfg.Kind
	if err := storage.ValidateKey(key); err != nil {
		return nil, fmt.Errorf("tracking: slot key: %w", err)
	}
	return &Persistence{
		kv:     kv,
		key:    key,
		ttl:    cfg.TTL,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

// Key returns the slot key.
func (p *Persistence) Key() string {
	return p.key
}

// Get loads the descriptor. Stale, undecodable and invalid descriptors are
// erased and reported as absent.
func (p *Persistence) Get(ctx context.Context) (*Descriptor, error) {
	raw, err := p.kv.Get(ctx, p.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load descriptor %s: %w", p.key, err)
	}

	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		p.logger.Warn("discarding undecodable descriptor", zap.String("key", p.key), zap.Error(err))
		return nil, p.Clear(ctx)
	}
	if err := d.Validate(); err != nil {
		p.logger.Warn("discarding invalid descriptor", zap.String("key", p.key), zap.Error(err))
		return nil, p.Clear(ctx)
	}
	if d.Stale(p.clock.Now(), p.ttl) {
		p.logger.Debug("discarding stale descriptor",
			zap.String("key", p.key),
			zap.Duration("age", d.Age(p.clock.Now())),
			zap.Duration("ttl", p.ttl),
		)
		return nil, p.Clear(ctx)
	}
	return &d, nil
}

// Set overwrites the slot with d.
func (p *Persistence) Set(ctx context.Context, d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	if err := p.kv.Set(ctx, p.key, raw); err != nil {
		return fmt.Errorf("store descriptor %s: %w", p.key, err)
	}
	return nil
}

// Clear erases the slot.
func (p *Persistence) Clear(ctx context.Context) error {
	if err := p.kv.Delete(ctx, p.key); err != nil {
		return fmt.Errorf("erase descriptor %s: %w", p.key, err)
	}
	return nil
}
