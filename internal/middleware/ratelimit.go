/**
 * internal/middleware/ratelimit.go
 * 请求限流中间件
 *
 * 功能：
 * - 分片令牌桶限流（按客户端 IP）
 * - 降低锁竞争：按 IP 哈希分散到固定分片
 * - 定期清理长时间不活跃的限流器，控制内存
 *
 * 依赖：
 * - golang.org/x/time/rate 令牌桶实现
 */

package middleware

import (
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"scene-arcade/internal/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ====================  常量定义 ====================

const (
	// shardCount 分片数量（2 的幂，便于位运算取模）
	shardCount = 16

	// limiterIdleTTL 限流器不活跃多久后被清理
	limiterIdleTTL = 10 * time.Minute

	// cleanupInterval 清理扫描间隔
	cleanupInterval = 5 * time.Minute
)

// ====================  类型定义 ====================

// limiterEntry 带最后访问时间的限流器
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterShard 单个分片
type rateLimiterShard struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

// ShardedRateLimiter 分片限流器
// 按键哈希分散到多个分片，降低高并发下的锁竞争
type ShardedRateLimiter struct {
	shards [shardCount]*rateLimiterShard
	rate   rate.Limit
	burst  int
}

// ====================  构造函数 ====================

// NewShardedRateLimiter 创建分片限流器
//
// 参数：
//   - r: 每秒允许的请求数
//   - burst: 突发容量
func NewShardedRateLimiter(r rate.Limit, burst int) *ShardedRateLimiter {
	srl := &ShardedRateLimiter{
		rate:  r,
		burst: burst,
	}

	for i := range srl.shards {
		srl.shards[i] = &rateLimiterShard{
			limiters: make(map[string]*limiterEntry),
		}
	}

	go srl.cleanupLoop()

	return srl
}

// ====================  公开方法 ====================

// Allow 检查某个键是否被允许通过
func (srl *ShardedRateLimiter) Allow(key string) bool {
	shard := srl.getShard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.limiters[key]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(srl.rate, srl.burst),
		}
		shard.limiters[key] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// Stats 返回当前跟踪的键数量
func (srl *ShardedRateLimiter) Stats() int {
	total := 0
	for _, shard := range srl.shards {
		shard.mu.Lock()
		total += len(shard.limiters)
		shard.mu.Unlock()
	}
	return total
}

// ====================  私有方法 ====================

// getShard 按键哈希选择分片
func (srl *ShardedRateLimiter) getShard(key string) *rateLimiterShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return srl.shards[h.Sum32()&(shardCount-1)]
}

// cleanupLoop 定期清理不活跃的限流器
func (srl *ShardedRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-limiterIdleTTL)
		removed := 0

		for _, shard := range srl.shards {
			shard.mu.Lock()
			for key, entry := range shard.limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(shard.limiters, key)
					removed++
				}
			}
			shard.mu.Unlock()
		}

		if removed > 0 {
			utils.LogPrintf("[RATELIMIT] Cleaned up %d idle limiters, %d remaining", removed, srl.Stats())
		}
	}
}

// ====================  中间件 ====================

// RateLimitMiddleware 按客户端 IP 限流
func RateLimitMiddleware(limiter *ShardedRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			utils.LogPrintf("[RATELIMIT] WARN: Request rejected: ip=%s, path=%s", c.ClientIP(), c.Request.URL.Path)
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}

// PreviewRateLimit 预览服务器默认限流（每 IP 每秒 50 请求，突发 100）
func PreviewRateLimit() gin.HandlerFunc {
	return RateLimitMiddleware(NewShardedRateLimiter(50, 100))
}
