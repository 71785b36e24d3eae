// Package breach queries a remote k-anonymity breached-password corpus.
// Only the first 20 bits (5 hex chars) of the password's SHA-1 digest ever
// leave the process; the returned candidate suffixes are matched locally.
//
// The checker is advisory and fails open: any transport error, timeout, or
// non-2xx response counts as "not breached" so that registration never
// depends on a third-party service being up.
package breach

import (
	"bufio"
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voyagerhq/auth-service/internal/logging"
)

const defaultUserAgent = "voyagerhq-auth-service/1.0"

// Checker looks up password digests against a pwned-passwords range API.
type Checker struct {
	client   *http.Client
	endpoint string // e.g. "https://api.pwnedpasswords.com/range"
	logger   logging.Logger
}

// NewChecker builds a Checker with a short client timeout; the timeout is
// the fail-open bound, not a retry budget.
func NewChecker(endpoint string, timeout time.Duration, logger logging.Logger) *Checker {
	return &Checker{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(endpoint, "/"),
		logger:   logger.With("component", "breach_checker"),
	}
}

// Count returns how many times the password appears in the breach corpus,
// or 0 when it is absent or the lookup could not be completed. It never
// returns an error: failures are logged and swallowed.
func (c *Checker) Count(ctx context.Context, password string) int {
	if password == "" {
		return 0
	}

	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(fmt.Sprintf("%x", sum))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+prefix, nil)
	if err != nil {
		c.logger.Warn(ctx, "breach check skipped: building request failed", "error", err)
		return 0
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "breach check failed open", "error", err)
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn(ctx, "breach check failed open", "status", resp.StatusCode)
		return 0
	}

	// Response lines look like "0018A45C4D1DEF81644B54AB7F969B88D65:3".
	count := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		candidate, countStr, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(candidate), suffix) {
			continue
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(countStr))
		if convErr != nil {
			c.logger.Warn(ctx, "breach corpus returned unparsable count", "error", convErr)
			continue
		}
		count += n
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn(ctx, "breach check failed open mid-response", "error", err)
		return 0
	}

	return count
}
