package models

import (
	"fmt"
	"time"
)

// Run kinds
const (
	RunRefreshDeals   = "refresh_deals"
	RunRefreshTracked = "refresh_tracked"
)

// Proxy is one upstream HTTP proxy endpoint
type Proxy struct {
	Address string
	Port    int
}

// URL returns the proxy in scheme://host:port form
func (p Proxy) URL() string {
	return fmt.Sprintf("http://%s:%d", p.Address, p.Port)
}

// Identity is the proxy + user agent pair used by one fetch session.
// A nil Proxy means a direct connection.
type Identity struct {
	Proxy     *Proxy
	UserAgent string
}

// RunSummary is reported at the end of every pipeline run
type RunSummary struct {
	RunID           string    `json:"run_id"`
	Kind            string    `json:"kind"`
	Scraped         int       `json:"scraped"`
	Inserted        int       `json:"inserted"`
	Updated         int       `json:"updated"`
	UpdatedProducts int       `json:"updated_products"`
	AlertsTriggered int       `json:"alerts_triggered"`
	Failed          int       `json:"failed"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
}
