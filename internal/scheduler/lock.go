package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const sweepLockKey = "pulsepay:settlement:sweep:lock"

// releaseScript deletes the lock only when the token still matches, so an
// instance whose lock expired can never release a newer holder's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// sweepLock is a SetNX lease guarding settlement sweeps across instances.
// The in-process atomic flag already serializes one instance; this extends
// the same guarantee to multi-instance deployments.
type sweepLock struct {
	client *redis.Client
	ttl    time.Duration
	token  string
}

func newSweepLock(client *redis.Client, ttl time.Duration) *sweepLock {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &sweepLock{client: client, ttl: ttl}
}

func (l *sweepLock) TryAcquire(ctx context.Context, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, sweepLockKey, token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

func (l *sweepLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	err := l.client.Eval(ctx, releaseScript, []string{sweepLockKey}, l.token).Err()
	l.token = ""
	return err
}
