package cas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	CASQueryURLTemplate = "https://cas.chat/query?u=%d"

	httpTimeout = 10 * time.Second
	maxRetries  = 3
	retryStep   = 300 * time.Millisecond
)

// Checker answers whether a user is listed by a third-party blocklist.
type Checker interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

type decodeFunc func(resp *http.Response) (bool, error)

type httpChecker struct {
	name        string
	urlTemplate string
	client      *http.Client
	decode      decodeFunc
	retryStep   time.Duration

	mu          sync.RWMutex
	knownBanned map[int64]struct{}
}

// NewCASChecker queries the Combot Anti-Spam API. A true "ok" field means the user is listed.
func NewCASChecker(urlTemplate string, timeout time.Duration) *httpChecker {
	return newHTTPChecker("cas", urlTemplate, timeout, func(resp *http.Response) (bool, error) {
		var res struct {
			OK bool `json:"ok"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
		return res.OK, nil
	})
}

// NewLolsChecker queries the lols.bot account API.
func NewLolsChecker(urlTemplate string, timeout time.Duration) *httpChecker {
	return newHTTPChecker("lols", urlTemplate, timeout, func(resp *http.Response) (bool, error) {
		var res struct {
			OK     bool `json:"ok"`
			Banned bool `json:"banned"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
		return res.Banned, nil
	})
}

func newHTTPChecker(name, urlTemplate string, timeout time.Duration, decode decodeFunc) *httpChecker {
	if timeout <= 0 {
		timeout = httpTimeout
	}
	return &httpChecker{
		name:        name,
		urlTemplate: urlTemplate,
		client:      &http.Client{Timeout: timeout},
		decode:      decode,
		retryStep:   retryStep,
		knownBanned: make(map[int64]struct{}),
	}
}

func (c *httpChecker) IsBanned(ctx context.Context, userID int64) (bool, error) {
	c.mu.RLock()
	_, known := c.knownBanned[userID]
	c.mu.RUnlock()
	if known {
		return true, nil
	}

	var lastErr error
	for attempt := range maxRetries {
		banned, err := c.check(ctx, userID)
		if err == nil {
			if banned {
				c.mu.Lock()
				c.knownBanned[userID] = struct{}{}
				c.mu.Unlock()
			}
			return banned, nil
		}
		lastErr = err

		if attempt == maxRetries-1 {
			break
		}
		backoff := time.Duration(attempt+1) * c.retryStep
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return false, fmt.Errorf("%s check failed after retries: %w", c.name, lastErr)
}

func (c *httpChecker) check(ctx context.Context, userID int64) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(c.urlTemplate, userID), nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return c.decode(resp)
}

// Multi reports a user banned when any checker lists them. Failing checkers are skipped.
type Multi []Checker

func (m Multi) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var errs []error
	for _, checker := range m {
		banned, err := checker.IsBanned(ctx, userID)
		if err != nil {
			log.WithField("component", "cas").WithField("error", err.Error()).Warn("blocklist lookup failed")
			errs = append(errs, err)
			continue
		}
		if banned {
			return true, nil
		}
	}
	if len(errs) > 0 && len(errs) == len(m) {
		return false, errors.WithMessage(errs[0], "all blocklists failed")
	}
	return false, nil
}

// New builds a checker from provider names, ignoring unknown ones.
func New(providers []string, casURL, lolsURL string, timeout time.Duration) Checker {
	var m Multi
	for _, name := range providers {
		switch name {
		case "cas":
			m = append(m, NewCASChecker(casURL, timeout))
		case "lols":
			m = append(m, NewLolsChecker(lolsURL, timeout))
		default:
			log.WithField("component", "cas").WithField("provider", name).Warn("unknown blocklist provider")
		}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}
