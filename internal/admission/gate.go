// Package admission sequences the per-connection checks into one allow/deny
// decision. Every path, including every failure, terminates in a Decision:
// nothing crosses this boundary as an error.
package admission

import (
	"context"
	"time"

	"tenantgate/internal/device"
	"tenantgate/internal/validate"
	"tenantgate/pkg/log"
)

const (
	ReasonNoTenantCode       = "no_tenant_code"
	ReasonInvalidFormat      = "invalid_format"
	ReasonMultiDeviceBlocked = "multi_device_blocked"
	ReasonInvalidTenant      = "invalid_tenant"
)

// Decision is the sole observable output of an admission pass.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

type TenantValidator interface {
	Validate(ctx context.Context, code string) bool
}

type DeviceEnforcer interface {
	Check(ctx context.Context, tenant, addr string) (bool, string)
	Reset(ctx context.Context, tenant string)
}

// Store covers the one cache operation the gate issues directly: the early
// blocked check.
type Store interface {
	Exists(ctx context.Context, key string) bool
}

type Gate struct {
	store     Store
	validator TenantValidator
	enforcer  DeviceEnforcer
	metrics   *Metrics
	log       log.Logger
}

func NewGate(store Store, validator TenantValidator, enforcer DeviceEnforcer, metrics *Metrics, logger log.Logger) *Gate {
	if logger == nil {
		logger = log.Default()
	}
	return &Gate{
		store:     store,
		validator: validator,
		enforcer:  enforcer,
		metrics:   metrics,
		log:       logger,
	}
}

// Evaluate decides admission for one connection attempt.
func (g *Gate) Evaluate(ctx context.Context, code, addr string) Decision {
	start := time.Now()

	decision := g.evaluate(ctx, code, addr)

	g.metrics.ObserveDecision(decision, time.Since(start))
	if decision.Allowed {
		g.log.Debugf("Admission allow tenant=%s addr=%s reason=%s", code, addr, decision.Reason)
	} else {
		g.log.Infof("Admission deny tenant=%s addr=%s reason=%s", code, addr, decision.Reason)
	}

	return decision
}

func (g *Gate) evaluate(ctx context.Context, code, addr string) Decision {
	if code == "" {
		return deny(ReasonNoTenantCode)
	}
	if !validate.ValidCode(code) {
		return deny(ReasonInvalidFormat)
	}

	// Early exit for blocked tenants, ahead of any validation work. The
	// enforcer repeats this check inside its own pass.
	if g.store.Exists(ctx, device.BlockKey(code)) {
		return deny(ReasonMultiDeviceBlocked)
	}

	if !g.validator.Validate(ctx, code) {
		return deny(ReasonInvalidTenant)
	}

	allowed, reason := g.enforcer.Check(ctx, code, addr)
	return Decision{Allowed: allowed, Reason: reason}
}

// Unblock clears a tenant's block flag and device set. It reports true
// whenever the deletes were attempted, whether or not the keys existed.
func (g *Gate) Unblock(ctx context.Context, code string) bool {
	if !validate.ValidCode(code) {
		return false
	}

	g.enforcer.Reset(ctx, code)
	g.log.Infof("Tenant %s unblocked", code)
	return true
}
