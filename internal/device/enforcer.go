// Package device enforces the single-active-device policy: one registered
// client address per tenant, with an automatic, time-bounded block on any
// second distinct address.
package device

import (
	"context"
	"time"

	"tenantgate/pkg/log"
)

const (
	ReasonTenantBlocked = "tenant_blocked"
	ReasonSameDevice    = "same_device"
	ReasonLimitExceeded = "device_limit_exceeded"
	ReasonRegistered    = "device_registered"
)

func BlockKey(tenant string) string {
	return "blocked:" + tenant
}

func DeviceKey(tenant string) string {
	return "dev:" + tenant
}

// Store is the slice of cache operations the enforcer consumes.
type Store interface {
	Exists(ctx context.Context, key string) bool
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
	SetAdd(ctx context.Context, key, member string, ttl time.Duration)
	SetCard(ctx context.Context, key string) int
	SetIsMember(ctx context.Context, key, member string) bool
	Expire(ctx context.Context, key string, ttl time.Duration)
}

// Binder reports a fresh registration to the validation authority.
// Best-effort: a failed bind does not affect the admission outcome.
type Binder interface {
	BindDevice(ctx context.Context, code, addr string) bool
}

type Config struct {
	MaxDevices    int
	SessionTTL    time.Duration
	BlockDuration time.Duration
}

type Enforcer struct {
	store  Store
	binder Binder
	cfg    Config
	log    log.Logger
}

func NewEnforcer(store Store, binder Binder, cfg Config, logger log.Logger) *Enforcer {
	if logger == nil {
		logger = log.Default()
	}
	return &Enforcer{
		store:  store,
		binder: binder,
		cfg:    cfg,
		log:    logger,
	}
}

// Check runs the device policy for one admission pass. The tenant has already
// passed validation.
//
// The read-check-write sequence below is deliberately not transactional: two
// concurrent first registrations can both observe cardinality 0 and both
// land, transiently exceeding the limit until a later check blocks the
// tenant. One round trip per step is the accepted tradeoff.
func (e *Enforcer) Check(ctx context.Context, tenant, addr string) (bool, string) {
	if e.store.Exists(ctx, BlockKey(tenant)) {
		return false, ReasonTenantBlocked
	}

	devKey := DeviceKey(tenant)

	if e.store.SetIsMember(ctx, devKey, addr) {
		e.store.Expire(ctx, devKey, e.cfg.SessionTTL)
		return true, ReasonSameDevice
	}

	if e.store.SetCard(ctx, devKey) >= e.cfg.MaxDevices {
		e.log.Warnf("Tenant %s exceeded device limit, blocking for %s", tenant, e.cfg.BlockDuration)
		e.store.Set(ctx, BlockKey(tenant), "true", e.cfg.BlockDuration)
		e.store.Delete(ctx, devKey)
		return false, ReasonLimitExceeded
	}

	e.store.SetAdd(ctx, devKey, addr, e.cfg.SessionTTL)

	if e.binder != nil {
		e.binder.BindDevice(ctx, tenant, addr)
	}

	return true, ReasonRegistered
}

// Reset clears a tenant's block flag and device set. Idempotent.
func (e *Enforcer) Reset(ctx context.Context, tenant string) {
	e.store.Delete(ctx, BlockKey(tenant))
	e.store.Delete(ctx, DeviceKey(tenant))
}
