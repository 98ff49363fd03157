// Package validate decides tenant validity: cache first, then the remote
// authority, with negative caching so a failing authority is not hammered.
package validate

import (
	"context"
	"regexp"
	"time"

	"tenantgate/internal/cache"
	"tenantgate/pkg/log"
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidCode reports whether code has an acceptable shape. Anything else is
// rejected before any cache or API traffic.
func ValidCode(code string) bool {
	return code != "" && codePattern.MatchString(code)
}

func ValidationKey(code string) string {
	return "v:" + code
}

func BindKey(code, addr string) string {
	return "b:" + code + ":" + addr
}

// Store is the slice of cache operations the validator consumes.
type Store interface {
	Get(ctx context.Context, key string) cache.Value
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Exists(ctx context.Context, key string) bool
}

// Authority is the outbound API surface, implemented by APIClient.
type Authority interface {
	ValidateTenant(ctx context.Context, code string) (bool, error)
	BindDevice(ctx context.Context, code, addr string) error
}

type Config struct {
	ValidTTL    time.Duration
	NegativeTTL time.Duration
}

type Validator struct {
	store     Store
	authority Authority
	cfg       Config
	log       log.Logger
}

func NewValidator(store Store, authority Authority, cfg Config, logger log.Logger) *Validator {
	if logger == nil {
		logger = log.Default()
	}
	return &Validator{
		store:     store,
		authority: authority,
		cfg:       cfg,
		log:       logger,
	}
}

// Validate resolves tenant validity. Cached outcomes, positive or negative,
// are returned without touching the authority. An authority failure resolves
// to false and is cached under the negative TTL.
func (v *Validator) Validate(ctx context.Context, code string) bool {
	if !ValidCode(code) {
		return false
	}

	key := ValidationKey(code)
	if cached := v.store.Get(ctx, key); cached.Present && cached.IsBool {
		return cached.Bool
	}

	valid, err := v.authority.ValidateTenant(ctx, code)
	if err != nil {
		v.log.Warnf("Tenant %s validation failed, caching negative result: %v", code, err)
		v.cacheResult(ctx, key, false)
		return false
	}

	v.cacheResult(ctx, key, valid)
	return valid
}

// BindDevice memoizes a successful bind call under the bind key so repeat
// registrations within the valid TTL stay local.
func (v *Validator) BindDevice(ctx context.Context, code, addr string) bool {
	key := BindKey(code, addr)
	if v.store.Exists(ctx, key) {
		return true
	}

	if err := v.authority.BindDevice(ctx, code, addr); err != nil {
		v.log.Warnf("Bind device %s for tenant %s failed: %v", addr, code, err)
		return false
	}

	v.store.Set(ctx, key, "true", v.cfg.ValidTTL)
	return true
}

func (v *Validator) cacheResult(ctx context.Context, key string, valid bool) {
	if valid {
		v.store.Set(ctx, key, "true", v.cfg.ValidTTL)
	} else {
		v.store.Set(ctx, key, "false", v.cfg.NegativeTTL)
	}
}
