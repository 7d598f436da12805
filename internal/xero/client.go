package xero

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/taxlens/ledgersync-worker/internal/backoff"
	"github.com/taxlens/ledgersync-worker/internal/metrics"
	"github.com/taxlens/ledgersync-worker/internal/service"
)

var (
	// ErrUnauthorized means the API rejected an access token the token
	// manager had just validated. That is a consistency bug, never a
	// transient condition, so it is not retried.
	ErrUnauthorized = errors.New("accounting API rejected access token")

	ErrRateLimited = errors.New("accounting API rate limit exceeded")
)

const (
	// Xero allows 60 calls per minute per tenant
	requestsPerSecond = 1
	requestBurst      = 5

	backoffMin  = time.Second
	backoffMax  = 30 * time.Second
	backoffMult = 2.0
)

type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxRetries   int
	logger       *slog.Logger
}

func NewClient(clientID, clientSecret, baseURL, tokenURL string, maxRetries int, logger *slog.Logger) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      baseURL,
		tokenURL:     tokenURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// FetchTransactionsPage fetches one page of bank transactions for a date
// range. Rate-limited responses are retried with bounded jittered backoff,
// honouring Retry-After when the API provides one; once the retry budget is
// spent the rate-limit error is returned for the caller to treat as a
// year-level failure. An unauthorized response is returned immediately.
func (c *Client) FetchTransactionsPage(ctx context.Context, token *service.TokenSet, fromDate, toDate time.Time, page int) (*service.TransactionPage, error) {
	bo := backoff.New(backoffMin, backoffMax, backoffMult)

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, retryAfter, err := c.fetchPage(ctx, token, fromDate, toDate, page)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return nil, err
		}

		metrics.RateLimitHits.Inc()

		if bo.Attempts() >= c.maxRetries {
			return nil, fmt.Errorf("retry budget exhausted after %d attempts: %w", bo.Attempts(), err)
		}

		wait := bo.Next()
		if retryAfter > 0 {
			wait = retryAfter
		}
		c.logger.Warn("Rate limited by accounting API, backing off",
			"page", page, "wait", wait, "attempt", bo.Attempts())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, token *service.TokenSet, fromDate, toDate time.Time, page int) (*service.TransactionPage, time.Duration, error) {
	endpoint := fmt.Sprintf("%s/BankTransactions", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	q := url.Values{}
	q.Set("fromDate", fromDate.Format("2006-01-02"))
	q.Set("toDate", toDate.Format("2006-01-02"))
	q.Set("page", strconv.Itoa(page))
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Xero-Tenant-Id", token.ProviderTenantID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusUnauthorized:
		return nil, 0, ErrUnauthorized
	case http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), ErrRateLimited
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, 0, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Pagination struct {
			Page      int `json:"page"`
			PageSize  int `json:"pageSize"`
			PageCount int `json:"pageCount"`
			ItemCount int `json:"itemCount"`
		} `json:"pagination"`
		BankTransactions []map[string]interface{} `json:"bankTransactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, fmt.Errorf("failed to parse API response: %w", err)
	}

	return &service.TransactionPage{
		Records:   payload.BankTransactions,
		Page:      payload.Pagination.Page,
		PageCount: payload.Pagination.PageCount,
		ItemCount: payload.Pagination.ItemCount,
	}, 0, nil
}

// RefreshAccessToken exchanges the refresh token for a new pair at the token
// endpoint. The external API rotates refresh tokens on use.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*service.TokenRefreshResult, error) {
	config := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: c.tokenURL,
		},
	}

	token := &oauth2.Token{
		RefreshToken: refreshToken,
	}

	newToken, err := config.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	result := &service.TokenRefreshResult{
		AccessToken: newToken.AccessToken,
		ExpiresAt:   newToken.Expiry,
	}

	// Check if refresh token was rotated
	if newToken.RefreshToken != "" && newToken.RefreshToken != refreshToken {
		result.RefreshToken = newToken.RefreshToken
	} else {
		result.RefreshToken = refreshToken
	}

	if scope, ok := newToken.Extra("scope").(string); ok {
		result.Scope = scope
	}

	c.logger.Info("Token refreshed via token endpoint", "expires_at", result.ExpiresAt)

	return result, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
