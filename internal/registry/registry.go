// Package registry implements service discovery over Redis keys with TTL
// expiry. Each service writes its registration under service_registry:<name>
// and refreshes it from a heartbeat ticker; a stopped heartbeat lets the
// entry expire.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cryptopulse/cryptopulse/internal/config"
)

const (
	keyPrefix = "service_registry:"

	// TTL and HeartbeatPeriod pair so two missed beats expire the entry.
	TTL             = 60 * time.Second
	HeartbeatPeriod = 30 * time.Second
)

// ErrServiceNotFound is returned when no live registration exists.
var ErrServiceNotFound = errors.New("service not registered")

// Registration is the JSON body stored per service.
type Registration struct {
	Name          string            `json:"name"`
	Host          string            `json:"host"`
	Port          int               `json:"port"`
	HealthURL     string            `json:"health_url"`
	RegisteredAt  time.Time         `json:"registered_at"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Healthy       bool              `json:"healthy"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// BaseURL returns the service's HTTP base address.
func (r *Registration) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", r.Host, r.Port)
}

// Registry reads and writes service registrations.
type Registry struct {
	rdb *redis.Client
	log zerolog.Logger
}

func New(rdb *redis.Client) *Registry {
	return &Registry{rdb: rdb, log: config.NewLogger("registry")}
}

// Register writes the registration with the standard TTL.
func (r *Registry) Register(ctx context.Context, reg *Registration) error {
	now := time.Now().UTC()
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = now
	}
	reg.LastHeartbeat = now
	reg.Healthy = true

	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("failed to marshal registration: %w", err)
	}
	if err := r.rdb.Set(ctx, keyPrefix+reg.Name, body, TTL).Err(); err != nil {
		return fmt.Errorf("failed to register %s: %w", reg.Name, err)
	}
	r.log.Info().
		Str("service", reg.Name).
		Str("base_url", reg.BaseURL()).
		Msg("Service registered")
	return nil
}

// Heartbeat refreshes the registration's heartbeat time and TTL.
func (r *Registry) Heartbeat(ctx context.Context, reg *Registration) error {
	reg.LastHeartbeat = time.Now().UTC()
	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("failed to marshal registration: %w", err)
	}
	return r.rdb.Set(ctx, keyPrefix+reg.Name, body, TTL).Err()
}

// Unregister removes the registration immediately.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	if err := r.rdb.Del(ctx, keyPrefix+name).Err(); err != nil {
		return fmt.Errorf("failed to unregister %s: %w", name, err)
	}
	r.log.Info().Str("service", name).Msg("Service unregistered")
	return nil
}

// Discover returns the live registration for a service name.
func (r *Registry) Discover(ctx context.Context, name string) (*Registration, error) {
	body, err := r.rdb.Get(ctx, keyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	var reg Registration
	if err := json.Unmarshal(body, &reg); err != nil {
		return nil, fmt.Errorf("corrupt registration for %s: %w", name, err)
	}
	return &reg, nil
}

// List enumerates every live registration.
func (r *Registry) List(ctx context.Context) ([]*Registration, error) {
	keys, err := r.rdb.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	out := make([]*Registration, 0, len(keys))
	for _, key := range keys {
		body, err := r.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between KEYS and GET
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		var reg Registration
		if err := json.Unmarshal(body, &reg); err != nil {
			r.log.Warn().Str("key", key).Err(err).Msg("Skipping corrupt registration")
			continue
		}
		out = append(out, &reg)
	}
	return out, nil
}

// RunHeartbeat registers the service and refreshes the registration every
// HeartbeatPeriod until ctx is cancelled, then unregisters.
func (r *Registry) RunHeartbeat(ctx context.Context, reg *Registration) error {
	if err := r.Register(ctx, reg); err != nil {
		return err
	}

	ticker := time.NewTicker(HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.Unregister(cleanup, reg.Name); err != nil {
				r.log.Warn().Err(err).Str("service", reg.Name).Msg("Unregister on shutdown failed")
			}
			return nil
		case <-ticker.C:
			if err := r.Heartbeat(ctx, reg); err != nil {
				r.log.Warn().Err(err).Str("service", reg.Name).Msg("Heartbeat failed")
			}
		}
	}
}
