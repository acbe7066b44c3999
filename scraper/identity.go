package scraper

import (
	"context"
	"math/rand"
	"sync/atomic"

	"dealtracker/models"
	"dealtracker/utils"
)

// Counter hands out a globally increasing rotation index, starting at 1
type Counter interface {
	Incr(ctx context.Context) (int64, error)
}

// LocalCounter is an in-process Counter
type LocalCounter struct {
	n atomic.Int64
}

func (c *LocalCounter) Incr(context.Context) (int64, error) {
	return c.n.Add(1), nil
}

// Rotator pairs the next proxy in round-robin order with a random user agent.
// It is safe for concurrent use; the only shared state is the counter.
type Rotator struct {
	proxies    []models.Proxy
	userAgents []string
	counter    Counter
	fallback   *LocalCounter
	logger     *utils.Logger
}

// NewRotator builds a rotator over at most poolSize proxies, in load order.
// A nil counter keeps rotation in-process.
func NewRotator(proxies []models.Proxy, userAgents []string, poolSize int, counter Counter, logger *utils.Logger) *Rotator {
	if poolSize > 0 && len(proxies) > poolSize {
		proxies = proxies[:poolSize]
	}
	r := &Rotator{
		proxies:    append([]models.Proxy(nil), proxies...),
		userAgents: append([]string(nil), userAgents...),
		counter:    counter,
		fallback:   &LocalCounter{},
		logger:     logger,
	}
	if r.counter == nil {
		r.counter = r.fallback
	}
	return r
}

// SetFallback makes the rotator fall back to c, rather than a counter of its own, when the
// shared counter fails. Rotators built for concurrent runs should share one c.
func (r *Rotator) SetFallback(c *LocalCounter) {
	if c != nil {
		r.fallback = c
	}
}

// PoolSize returns the number of proxies in rotation
func (r *Rotator) PoolSize() int {
	return len(r.proxies)
}

// Next returns the identity for the next fetch session. An empty pool yields a direct connection.
func (r *Rotator) Next(ctx context.Context) models.Identity {
	id := models.Identity{UserAgent: r.randomUserAgent()}
	if len(r.proxies) == 0 {
		return id
	}

	n, err := r.counter.Incr(ctx)
	if err != nil {
		r.logger.Warn("Rotation counter unavailable, rotating locally: %v", err)
		n, _ = r.fallback.Incr(ctx)
	}
	idx := (n - 1) % int64(len(r.proxies))
	if idx < 0 {
		idx += int64(len(r.proxies))
	}
	proxy := r.proxies[idx]
	id.Proxy = &proxy
	return id
}

func (r *Rotator) randomUserAgent() string {
	if len(r.userAgents) == 0 {
		return ""
	}
	return r.userAgents[rand.Intn(len(r.userAgents))]
}
