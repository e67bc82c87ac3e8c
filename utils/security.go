package utils

import (
	"strings"
	"sync"
	"time"

	"tg-tires-server/models"
	"tg-tires-server/storage"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

const (
	maxViolations = 5
	violationTTL  = 15 * time.Minute
	ipBlockTTL    = time.Hour
	maxContentLen = 2000
)

// Violations counts security violations per source IP; Blocks holds the
// auto-blocked addresses. Both default to Redis and are swapped for the
// in-memory stores in tests.
var (
	Violations CounterStore = RedisCounterStore{}
	Blocks     Blocklist    = RedisBlocklist{}
)

// Blocklist tracks blocked source addresses.
type Blocklist interface {
	Block(ip string, ttl time.Duration) error
	Unblock(ip string) error
	IsBlocked(ip string) (bool, error)
}

// RedisBlocklist keys blocked addresses under sec:block: and lets them
// expire with the block TTL.
type RedisBlocklist struct{}

func (RedisBlocklist) Block(ip string, ttl time.Duration) error {
	if storage.Redis == nil {
		return errRedisUnavailable
	}
	return storage.Redis.Set(bgContext, "sec:block:"+ip, "1", ttl).Err()
}

func (RedisBlocklist) Unblock(ip string) error {
	if storage.Redis == nil {
		return errRedisUnavailable
	}
	return storage.Redis.Del(bgContext, "sec:block:"+ip).Err()
}

func (RedisBlocklist) IsBlocked(ip string) (bool, error) {
	if storage.Redis == nil {
		return false, nil
	}
	n, err := storage.Redis.Exists(bgContext, "sec:block:"+ip).Result()
	return n > 0, err
}

type MemoryBlocklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryBlocklist() *MemoryBlocklist {
	return &MemoryBlocklist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (b *MemoryBlocklist) Block(ip string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[ip] = b.now().Add(ttl)
	return nil
}

func (b *MemoryBlocklist) Unblock(ip string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, ip)
	return nil
}

func (b *MemoryBlocklist) IsBlocked(ip string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.entries[ip]
	if !ok {
		return false, nil
	}
	if !until.After(b.now()) {
		delete(b.entries, ip)
		return false, nil
	}
	return true, nil
}

// Substrings that never belong in marketplace free text. Matching is
// case-insensitive and deliberately crude; the goal is logging and early
// rejection, not a WAF.
var suspiciousPatterns = []string{
	"' or '1'='1",
	"union select",
	"drop table",
	"insert into",
	"delete from",
	"<script",
	"javascript:",
	"onerror=",
	"onload=",
	"../",
	"..\\",
	"/etc/passwd",
	"%00",
}

// ScanSuspicious returns the first hostile substring found in any value.
func ScanSuspicious(values ...string) (string, bool) {
	for _, v := range values {
		lower := strings.ToLower(v)
		for _, p := range suspiciousPatterns {
			if strings.Contains(lower, p) {
				return p, true
			}
		}
	}
	return "", false
}

// SanitizeContent strips angle brackets, trims whitespace and caps the result
// at maxContentLen runes. Applied to every message body before storage.
func SanitizeContent(content string) string {
	replacer := strings.NewReplacer("<", "", ">", "")
	cleaned := strings.TrimSpace(replacer.Replace(content))
	runes := []rune(cleaned)
	if len(runes) > maxContentLen {
		return string(runes[:maxContentLen])
	}
	return cleaned
}

// RecordSecurityEvent persists a structured security event and bumps the
// source IP's violation counter. Five violations inside fifteen minutes
// block the IP for an hour.
func RecordSecurityEvent(ctx iris.Context, eventType, severity, detail string) {
	ip := ClientIP(ctx)

	var userID uint
	if tok := jwt.Get(ctx); tok != nil {
		if at, ok := tok.(*AccessToken); ok {
			userID = at.ID
		}
	}

	if storage.DB != nil {
		event := models.SecurityEvent{
			EventType: eventType,
			Severity:  severity,
			Detail:    detail,
			IPAddress: ip,
			UserID:    userID,
			Path:      ctx.Path(),
		}
		storage.DB.Create(&event)
	}

	if severity == models.SeverityLow {
		return
	}

	count, _, err := Violations.Incr("sec:viol:"+ip, violationTTL)
	if err != nil {
		return
	}
	if count >= maxViolations {
		Blocks.Block(ip, ipBlockTTL)
	}
}

// IPBlockMiddleware rejects requests from auto-blocked addresses. Blocklist
// failures fail open, same as the rate limiter.
func IPBlockMiddleware(ctx iris.Context) {
	blocked, err := Blocks.IsBlocked(ClientIP(ctx))
	if err == nil && blocked {
		ctx.StopWithJSON(iris.StatusForbidden, iris.Map{
			"error":   "blocked",
			"message": "Access temporarily blocked.",
		})
		return
	}
	ctx.Next()
}
