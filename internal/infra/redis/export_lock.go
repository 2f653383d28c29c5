package redis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ExportLock is an export.Locker shared by every server process writing the same
// submission log. The key expires after ttl so a crashed holder cannot wedge exports;
// a live holder renews it every ttl/3 until it unlocks.
type ExportLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	retry  time.Duration
}

func NewExportLock(client *redis.Client, ttl time.Duration) *ExportLock {
	return &ExportLock{
		client: client,
		key:    "exam:export:lock",
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key only if it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lock polls SET NX until it wins or ctx is done.
func (l *ExportLock) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("set lock: %w", err)
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go l.renew(token, stop, done)
			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-done
					l.release(token)
				})
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *ExportLock) renew(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := renewScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		switch {
		case err != nil:
			log.Printf("renew export lock: %v", err)
		case n == 0:
			log.Printf("export lock lost before release")
			return
		}
	}
}

func (l *ExportLock) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
		log.Printf("release export lock: %v", err)
	}
}
