package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const (
	// maxAttempts bounds retries for transport errors and 5xx responses.
	maxAttempts = 3

	initialBackoff = 1 * time.Second
	maxBackoff     = 4 * time.Second
)

// Client issues authenticated GETs against the WHOOP developer API. It owns
// pacing and retries; token lifecycle belongs to the caller, which sees
// ErrUnauthorized and decides whether to refresh.
type Client struct {
	baseURL string
	http    *http.Client
	pacer   *Pacer
}

// NewClient builds a client for the given base URL. The pacer is shared
// process-wide and must not be nil.
func NewClient(baseURL string, timeout time.Duration, pacer *Pacer) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		http:    &http.Client{Timeout: timeout},
		pacer:   pacer,
	}
}

// FetchPage fetches one page of records for a data type within [start, end].
// Iterating pages is the caller's responsibility: pass the returned
// NextToken back in as cursor until it is empty.
func (c *Client) FetchPage(ctx context.Context, dt DataType, token string, start, end time.Time, cursor string, limit int) (Page, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("nextToken", cursor)
	}

	body, err := c.get(ctx, dt.Path(), q, token)
	if err != nil {
		return Page{}, err
	}

	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Page{}, &TransientError{Cause: fmt.Errorf("decoding %s page: %w", dt, err)}
	}

	page := Page{Records: env.Records}
	if env.NextToken != nil {
		page.NextToken = *env.NextToken
	}
	return page, nil
}

// FetchProfile fetches the upstream user profile. Used once at OAuth
// completion to learn the upstream account id.
func (c *Client) FetchProfile(ctx context.Context, token string) (Profile, error) {
	body, err := c.get(ctx, "user/profile/basic", nil, token)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, &TransientError{Cause: fmt.Errorf("decoding profile: %w", err)}
	}
	return p, nil
}

// get runs a paced, retrying GET. Retry policy:
//   - transport errors and 5xx: exponential backoff, maxAttempts total
//   - 429: wait Retry-After and retry once; a second 429 is surfaced
//   - 401/404/other 4xx: no retry
func (c *Client) get(ctx context.Context, path string, q url.Values, token string) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body []byte
	rateLimitWaited := false

	op := func() error {
		if err := c.pacer.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("upstream request failed")
			return &TransientError{Cause: err}
		}
		defer resp.Body.Close()

		log.Debug().
			Str("path", path).
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(start)).
			Msg("upstream request completed")

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return &TransientError{Cause: err}
			}
			return nil

		case resp.StatusCode == http.StatusUnauthorized:
			return backoff.Permanent(ErrUnauthorized)

		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			if retryAfter == 0 {
				retryAfter = initialBackoff
			}
			if rateLimitWaited {
				return backoff.Permanent(&RateLimitedError{RetryAfter: retryAfter})
			}
			rateLimitWaited = true
			log.Warn().
				Str("path", path).
				Dur("retryAfter", retryAfter).
				Msg("upstream rate limited, waiting before single retry")
			select {
			case <-time.After(retryAfter):
				return &RateLimitedError{RetryAfter: retryAfter}
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}

		case resp.StatusCode >= 500:
			return &TransientError{Cause: fmt.Errorf("upstream status %d", resp.StatusCode)}

		default:
			return backoff.Permanent(&PermanentError{Status: resp.StatusCode})
		}
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initialBackoff
	expo.Multiplier = 2
	expo.MaxInterval = maxBackoff
	expo.RandomizationFactor = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(expo, maxAttempts-1), ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// parseRetryAfter parses the Retry-After header.
// Supports both integer seconds and HTTP-date format.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}
