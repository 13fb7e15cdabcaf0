// Package cache keeps short-lived device presence in Redis so several relay
// processes, and the admin console, share one view of who is online.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "relay:presence:"
	onlineSet = "relay:online"
)

// Presence records when devices were last heard from and which ones hold a
// push connection.
type Presence struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPresence wraps rdb. ttl bounds how long a last-seen mark survives
// without a refresh.
func NewPresence(rdb *redis.Client, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Presence{rdb: rdb, ttl: ttl}
}

func key(deviceID string) string { return keyPrefix + deviceID }

// Seen refreshes the device's last-seen timestamp.
func (p *Presence) Seen(ctx context.Context, deviceID string, at time.Time) error {
	if err := p.rdb.Set(ctx, key(deviceID), at.UnixMilli(), p.ttl).Err(); err != nil {
		return fmt.Errorf("presence: seen %s: %w", deviceID, err)
	}
	return nil
}

// LastSeen returns the stored timestamp; ok is false when none is stored.
func (p *Presence) LastSeen(ctx context.Context, deviceID string) (time.Time, bool, error) {
	v, err := p.rdb.Get(ctx, key(deviceID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("presence: last seen %s: %w", deviceID, err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("presence: bad value for %s: %w", deviceID, err)
	}
	return time.UnixMilli(ms), true, nil
}

// SetOnline adds or removes the device from the push-connected set.
func (p *Presence) SetOnline(ctx context.Context, deviceID string, online bool) error {
	var err error
	if online {
		err = p.rdb.SAdd(ctx, onlineSet, deviceID).Err()
	} else {
		err = p.rdb.SRem(ctx, onlineSet, deviceID).Err()
	}
	if err != nil {
		return fmt.Errorf("presence: set online %s: %w", deviceID, err)
	}
	return nil
}

// Online lists push-connected devices.
func (p *Presence) Online(ctx context.Context) ([]string, error) {
	ids, err := p.rdb.SMembers(ctx, onlineSet).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: online: %w", err)
	}
	return ids, nil
}

// Forget removes every trace of the device.
func (p *Presence) Forget(ctx context.Context, deviceID string) error {
	pipe := p.rdb.TxPipeline()
	pipe.Del(ctx, key(deviceID))
	pipe.SRem(ctx, onlineSet, deviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: forget %s: %w", deviceID, err)
	}
	return nil
}
