package draw

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenStore remembers which offer ids have already been surfaced as a toast
// or OS notification. The redis implementation survives a client restart;
// the in-memory one is per-process.
type SeenStore interface {
	Seen(ctx context.Context, sessionID, offerID string) (bool, error)
	MarkSeen(ctx context.Context, sessionID, offerID string) error
}

type memorySeen struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemorySeen builds the in-process store.
func NewMemorySeen() SeenStore {
	return &memorySeen{seen: make(map[string]struct{})}
}

func (m *memorySeen) Seen(_ context.Context, sessionID, offerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[sessionID+"|"+offerID]
	return ok, nil
}

func (m *memorySeen) MarkSeen(_ context.Context, sessionID, offerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[sessionID+"|"+offerID] = struct{}{}
	return nil
}

const seenTTL = 24 * time.Hour

type redisSeen struct {
	rdb *redis.Client
}

// NewRedisSeen connects to redis so seen-offer ids persist across restarts.
func NewRedisSeen(redisURL string) (SeenStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisSeen{rdb: rdb}, nil
}

func (r *redisSeen) Seen(ctx context.Context, sessionID, offerID string) (bool, error) {
	return r.rdb.SIsMember(ctx, seenKey(sessionID), offerID).Result()
}

func (r *redisSeen) MarkSeen(ctx context.Context, sessionID, offerID string) error {
	key := seenKey(sessionID)
	if err := r.rdb.SAdd(ctx, key, offerID).Err(); err != nil {
		return err
	}
	return r.rdb.Expire(ctx, key, seenTTL).Err()
}

func seenKey(sessionID string) string { return "draw:seen:" + strings.TrimSpace(sessionID) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
