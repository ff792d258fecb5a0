// Package submit implements the collector protocol: token acquisition,
// proof-of-work, request signing, and delivery with bounded retries.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/platinumlabs/encbench/internal/backoff"
	"github.com/platinumlabs/encbench/internal/ratelimit"
	"github.com/platinumlabs/encbench/internal/sign"
	"github.com/platinumlabs/encbench/internal/tracing"
	"github.com/platinumlabs/encbench/pkg/domain"
)

const maxBodyDiagnostic = 2048

// Failure is the terminal submission error, carrying enough context to
// debug a rejection without re-running the batch.
type Failure struct {
	StatusCode int
	Body       string
	TokenSent  bool
	NonceSent  bool
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("submit: %v (token=%v nonce=%v)", f.Err, f.TokenSent, f.NonceSent)
	}
	return fmt.Sprintf("submit: status %d (token=%v nonce=%v): %s",
		f.StatusCode, f.TokenSent, f.NonceSent, f.Body)
}

func (f *Failure) Unwrap() error { return f.Err }

// Client speaks to one collector. Zero-value optional fields disable the
// matching protocol feature.
type Client struct {
	BaseURL string
	APIKey  string
	// Signer is nil when no shared secret is configured.
	Signer *sign.Signer

	UseTokenProtocol bool
	TokenEndpoints   []string

	Retries       int
	BackoffPolicy string
	BackoffBase   time.Duration
	BackoffMax    time.Duration

	// Limiter paces outbound requests client-side, independent of the
	// server's 429 responses.
	Limiter ratelimit.Limiter
	Bucket  ratelimit.Bucket

	HTTPClient *http.Client
	Logger     *slog.Logger

	rng *rand.Rand
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// noFollowClient stops at the first redirect so the single-hop policy in
// send stays in control instead of net/http's ten-hop default.
var noFollowClient = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return noFollowClient
}

// Submit sanitizes the record and delivers it. Sanitization here and in
// the queue path is the same projection, so the wire bytes agree.
func (c *Client) Submit(ctx context.Context, rec domain.ResultRecord) error {
	payload, err := rec.Sanitize()
	if err != nil {
		return fmt.Errorf("submit: sanitize: %w", err)
	}
	return c.SubmitRaw(ctx, payload)
}

// SubmitRaw delivers an already-sanitized payload. The retry-queue drain
// uses this directly with the stored bytes.
func (c *Client) SubmitRaw(ctx context.Context, payload []byte) error {
	retries := c.Retries
	if retries <= 0 {
		retries = 1
	}

	var last *Failure
	for attempt := 1; attempt <= retries; {
		if c.Limiter != nil {
			if err := ratelimit.Wait(ctx, c.Limiter, c.Bucket); err != nil {
				return &Failure{Err: err}
			}
		}

		token, nonce := c.credentials(ctx)
		resp, err := c.send(ctx, payload, token, nonce)
		if err != nil {
			last = &Failure{Err: err, TokenSent: token != "", NonceSent: nonce != ""}
			if ctx.Err() != nil || attempt >= retries {
				return last
			}
			attempt = c.sleepAndAdvance(ctx, attempt)
			continue
		}

		body := readBody(resp)
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			// Server pushback stays inside the same attempt budget.
			delay := backoff.RetryAfter(resp)
			if delay <= 0 {
				delay = backoff.Compute("exponential", c.backoffBase(), c.backoffMax(), attempt, c.rng)
			}
			c.logger().Warn("collector rate limited", "delay", delay)
			if !sleepCtx(ctx, delay) {
				return &Failure{StatusCode: resp.StatusCode, Body: body, TokenSent: token != "", NonceSent: nonce != "", Err: ctx.Err()}
			}
			continue
		default:
			last = &Failure{
				StatusCode: resp.StatusCode,
				Body:       body,
				TokenSent:  token != "",
				NonceSent:  nonce != "",
			}
			c.logger().Warn("submission rejected",
				"status", resp.StatusCode, "attempt", attempt, "retries", retries)
			if attempt >= retries {
				return last
			}
			attempt = c.sleepAndAdvance(ctx, attempt)
		}
	}
	if last == nil {
		last = &Failure{Err: fmt.Errorf("no attempts made")}
	}
	return last
}

// credentials runs the optional token and proof-of-work steps. Empty
// strings mean the matching header is omitted.
func (c *Client) credentials(ctx context.Context) (token, nonce string) {
	if !c.UseTokenProtocol {
		return "", ""
	}
	tok, ok := c.fetchToken(ctx)
	if !ok || !tok.Usable() {
		return "", ""
	}
	if tok.PoW.Difficulty > 0 {
		// A failed search still sends the token; the server decides.
		nonce, _ = solveNonce(tok.Token, tok.PoW.Difficulty)
	}
	return tok.Token, nonce
}

// fetchToken probes the candidate endpoints in order; the first 2xx
// response wins. Any failure just means no token.
func (c *Client) fetchToken(ctx context.Context) (domain.SubmissionToken, bool) {
	return firstSuccess(len(c.TokenEndpoints), func(i int) (domain.SubmissionToken, bool) {
		var zero domain.SubmissionToken
		url := c.BaseURL + c.TokenEndpoints[i]
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return zero, false
		}
		if c.APIKey != "" {
			req.Header.Set("x-api-key", c.APIKey)
		}
		resp, err := c.httpClient().Do(req)
		if err != nil {
			return zero, false
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, resp.Body)
			return zero, false
		}
		var tok domain.SubmissionToken
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&tok); err != nil {
			return zero, false
		}
		return tok, true
	})
}

// send issues one POST, following at most one redirect hop with an
// identical re-issued request.
func (c *Client) send(ctx context.Context, payload []byte, token, nonce string) (*http.Response, error) {
	url := c.BaseURL + "/submit"
	resp, err := c.post(ctx, url, payload, token, nonce)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if loc == "" {
			return nil, fmt.Errorf("redirect %d without Location", resp.StatusCode)
		}
		if !strings.Contains(loc, "://") {
			loc = c.BaseURL + loc
		}
		return c.post(ctx, loc, payload, token, nonce)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, url string, payload []byte, token, nonce string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}
	if token != "" {
		req.Header.Set("x-benchmark-token", token)
	}
	if nonce != "" {
		req.Header.Set("x-pow-nonce", nonce)
	}
	if c.Signer != nil {
		sig, ts := c.Signer.Sign(payload, time.Now())
		req.Header.Set("x-signature", sig)
		req.Header.Set("x-timestamp", ts)
	}
	tracing.InjectHeaders(ctx, req.Header)
	return c.httpClient().Do(req)
}

func (c *Client) sleepAndAdvance(ctx context.Context, attempt int) int {
	delay := backoff.Compute(c.backoffPolicy(), c.backoffBase(), c.backoffMax(), attempt, c.rng)
	sleepCtx(ctx, delay)
	return attempt + 1
}

func (c *Client) backoffPolicy() string {
	if c.BackoffPolicy == "" {
		return "linear"
	}
	return c.BackoffPolicy
}

func (c *Client) backoffBase() time.Duration {
	if c.BackoffBase <= 0 {
		return time.Second
	}
	return c.BackoffBase
}

func (c *Client) backoffMax() time.Duration {
	if c.BackoffMax <= 0 {
		return 30 * time.Second
	}
	return c.BackoffMax
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyDiagnostic))
	return strings.TrimSpace(string(b))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
