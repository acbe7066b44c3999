package scraper

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dealtracker/config"
	"dealtracker/models"
	"dealtracker/utils"
)

// ProxySource supplies the proxy pool at the start of a run; an empty result is valid
type ProxySource interface {
	LoadProxies(ctx context.Context) ([]models.Proxy, error)
}

// HTTPProxySource downloads a plain-text "ip:port" list
type HTTPProxySource struct {
	enabled bool
	url     string
	limit   int
	client  *http.Client
	logger  *utils.Logger
}

// NewHTTPProxySource creates a source from the pipeline settings
func NewHTTPProxySource(cfg config.PipelineConfig, logger *utils.Logger) *HTTPProxySource {
	return &HTTPProxySource{
		enabled: cfg.UseProxy && cfg.ProxyListURL != "",
		url:     cfg.ProxyListURL,
		limit:   cfg.ProxyPoolSize,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// LoadProxies implements ProxySource
func (s *HTTPProxySource) LoadProxies(ctx context.Context) ([]models.Proxy, error) {
	if !s.enabled {
		return nil, nil
	}

	var proxies []models.Proxy
	err := utils.RetryWithBackoff(ctx, 3, time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("proxy list returned status %d", resp.StatusCode)
		}
		proxies, err = ParseProxyList(resp.Body, s.limit)
		return err
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("load proxy list: %w", err)
	}

	s.logger.Info("Loaded %d proxies", len(proxies))
	return proxies, nil
}

// ParseProxyList reads "ip:port" lines, skipping malformed ones, keeping at most limit entries
func ParseProxyList(r io.Reader, limit int) ([]models.Proxy, error) {
	var out []models.Proxy
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if limit > 0 && len(out) >= limit {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		host, portStr, ok := strings.Cut(line, ":")
		if !ok || host == "" {
			continue
		}
		port, err := strconv.Atoi(strings.TrimSpace(portStr))
		if err != nil || port <= 0 || port > 65535 {
			continue
		}
		out = append(out, models.Proxy{Address: strings.TrimSpace(host), Port: port})
	}
	return out, sc.Err()
}
