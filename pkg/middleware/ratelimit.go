package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// LimiterStore はキーごとのトークンバケットを保持する。
// 一定時間使われなかったキーはCleanupで削除される。
type LimiterStore struct {
	mu           sync.Mutex
	entries      map[string]*limiterEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// LimiterOption はLimiterStoreの設定を変更する関数。
type LimiterOption func(*LimiterStore)

// WithIdleTTL は未使用キーを削除するまでの時間を設定する。
func WithIdleTTL(d time.Duration) LimiterOption {
	return func(s *LimiterStore) { s.idleTTL = d }
}

// WithCleanupEvery はStartJanitorの実行間隔を設定する。
func WithCleanupEvery(d time.Duration) LimiterOption {
	return func(s *LimiterStore) { s.cleanupEvery = d }
}

// NewLimiterStore は1秒あたりrps件、最大burst件のLimiterStoreを生成する。
func NewLimiterStore(rps float64, burst int, opts ...LimiterOption) *LimiterStore {
	s := &LimiterStore{
		entries:      make(map[string]*limiterEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get はキーに対応するリミッターを返す。なければ作成する。
func (s *LimiterStore) Get(key string) *rate.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

// Len は保持しているキーの数を返す。
func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup はidleTTL以上使われていないキーを削除する。
func (s *LimiterStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor は未使用キーを定期的に削除するゴルーチンを開始する。ctxのキャンセルで停止する。
func (s *LimiterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// RateLimit はユーザー単位（未認証ならクライアントIP単位）でリクエストを制限するGinミドルウェアを返す。
// storeがnilの場合は何もしない。
func RateLimit(store *LimiterStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.Next()
			return
		}

		key := GetUserID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		lim := store.Get(key)
		res := lim.Reserve()
		if delay := res.Delay(); !res.OK() || delay > 0 {
			res.Cancel()
			retry := 1
			if res.OK() {
				retry = int(math.Ceil(delay.Seconds()))
			}
			c.Header("Retry-After", strconv.Itoa(max(retry, 1)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "リクエストが多すぎます。しばらくしてから再試行してください",
			})
			return
		}
		c.Next()
	}
}
