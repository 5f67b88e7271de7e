// Package httpx provides the retrying HTTP client shared by the external
// adapters: bounded attempts, error classification, exponential backoff and
// Retry-After awareness for rate-limited upstreams.
package httpx

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"matchbell/pkg/logx"
)

type Config struct {
	// MaxRetries is the total number of attempts (default 3).
	MaxRetries int
	// BaseDelay seeds the exponential backoff: base * 2^attempt (default 1s).
	BaseDelay time.Duration
	// Timeout bounds each individual call (default 30s).
	Timeout time.Duration
	// RatePerSec paces outbound calls; 0 disables the limiter.
	RatePerSec int
	// Transport overrides the default round tripper. Tests inject mocks here.
	Transport http.RoundTripper
}

// Client wraps http.Client with retry semantics. Safe for concurrent use.
type Client struct {
	http    *http.Client
	cfg     Config
	limiter *rate.Limiter
	log     logx.Logger

	// sleep is swapped out in tests to record backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{
		http:  &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		cfg:   cfg,
		log:   log,
		sleep: sleepCtx,
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return c
}

// Do performs the request with up to MaxRetries attempts.
//
// Classification:
//   - timeouts, connection errors and HTTP 429 are retried (429 honors the
//     Retry-After header, otherwise exponential backoff applies);
//   - any other 4xx or 5xx is terminal and returned as *RequestError after a
//     single attempt;
//   - unclassified errors (including context cancellation) abort immediately.
//
// After the budget is exhausted Do returns *RequestFailedError wrapping the
// last classified error. The caller owns resp.Body on success.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr *RequestError
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		r := req
		if attempt > 0 {
			r = req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				r.Body = body
			}
		}

		resp, err := c.http.Do(r)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			re := classifyTransportError(err)
			if re == nil {
				// Unexpected failure mode: no retry.
				return nil, err
			}
			lastErr = re
		} else {
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return resp, nil
			case resp.StatusCode == http.StatusTooManyRequests:
				ra := parseRetryAfter(resp.Header.Get("Retry-After"))
				drain(resp)
				lastErr = &RequestError{Kind: KindRateLimited, StatusCode: resp.StatusCode, RetryAfter: ra}
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				drain(resp)
				return nil, &RequestError{Kind: KindClient, StatusCode: resp.StatusCode}
			default:
				drain(resp)
				return nil, &RequestError{Kind: KindServer, StatusCode: resp.StatusCode}
			}
		}

		c.log.Debug("request attempt failed",
			logx.Int("attempt", attempt+1),
			logx.Int("max", c.cfg.MaxRetries),
			logx.String("kind", lastErr.Kind.String()))

		if attempt == c.cfg.MaxRetries-1 {
			break
		}

		delay := c.cfg.BaseDelay << uint(attempt)
		if lastErr.Kind == KindRateLimited && lastErr.RetryAfter > 0 {
			delay = time.Duration(lastErr.RetryAfter) * time.Second
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &RequestFailedError{Attempts: c.cfg.MaxRetries, Last: lastErr}
}

func classifyTransportError(err error) *RequestError {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &RequestError{Kind: KindTimeout, Err: err}
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &RequestError{Kind: KindConnection, Err: err}
	}
	return nil
}

func parseRetryAfter(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
