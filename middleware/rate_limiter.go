package middleware

import (
	"sync"
	"time"

	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// RateLimiter limits requests per client IP with a token bucket refilled at
// requests per window. Idle clients are forgotten after ten windows.
type RateLimiter struct {
	requests int
	window   time.Duration

	mu      sync.Mutex
	clients map[string]*rateClient
	stop    chan struct{}
	once    sync.Once
}

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: requests,
		window:   window,
		clients:  make(map[string]*rateClient),
		stop:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Handler returns the Fiber middleware
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rl.Allow(c.IP()) {
			return utils.TooManyRequestsError("Rate limit exceeded. Please try again later.")
		}
		return c.Next()
	}
}

// Allow reports whether ip may make another request now
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	cl, exists := rl.clients[ip]
	if !exists {
		cl = &rateClient{limiter: rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.requests)), rl.requests)}
		rl.clients[ip] = cl
	}
	cl.lastSeen = time.Now()
	rl.mu.Unlock()

	return cl.limiter.Allow()
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > 10*rl.window {
			delete(rl.clients, ip)
		}
	}
}
