package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taxlens/ledgersync-worker/internal/metrics"
	"github.com/taxlens/ledgersync-worker/internal/models"
	"github.com/taxlens/ledgersync-worker/internal/repository"
)

// Refresh tokens shortly before they actually expire to absorb clock skew
const tokenExpirySkew = 5 * time.Minute

var ErrNoConnection = errors.New("no accounting connection for tenant")

// TokenSet is a tenant connection's usable credentials for the accounting API
type TokenSet struct {
	TenantID         string
	ProviderTenantID string
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	Scope            string
}

// TokenRefreshResult is the token pair returned by the external token endpoint
type TokenRefreshResult struct {
	AccessToken  string
	RefreshToken string // May be same or rotated
	ExpiresAt    time.Time
	Scope        string
}

// ConnectionStore is the persistence contract the token manager needs
type ConnectionStore interface {
	GetByTenantID(ctx context.Context, tenantID string) (*models.Connection, error)
	UpdateTokensCAS(ctx context.Context, tenantID, previousRefreshToken, accessToken, refreshToken string, expiresAt time.Time, scope string) error
}

// TokenRefresher exchanges a refresh token at the external token endpoint
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenRefreshResult, error)
}

// TokenManager owns the OAuth token lifecycle for tenant connections
type TokenManager struct {
	connections ConnectionStore
	refresher   TokenRefresher
	logger      *slog.Logger
}

func NewTokenManager(connections ConnectionStore, refresher TokenRefresher, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		connections: connections,
		refresher:   refresher,
		logger:      logger,
	}
}

// GetValidTokenSet returns credentials guaranteed usable right now, refreshing
// and persisting a replacement pair first when the stored one has expired.
// A refresh that loses the single-use race against a concurrent refresh fails
// here; it must never be retried with the stale token.
func (m *TokenManager) GetValidTokenSet(ctx context.Context, tenantID string) (*TokenSet, error) {
	conn, err := m.connections.GetByTenantID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrConnectionNotFound) {
			return nil, ErrNoConnection
		}
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}

	if conn.AccessToken == nil || conn.RefreshToken == nil {
		return nil, fmt.Errorf("connection for tenant %s is missing tokens", tenantID)
	}

	if !m.isTokenExpired(conn.ExpiresAt) {
		return tokenSetFromConnection(conn), nil
	}

	m.logger.Info("Access token expired, refreshing", "tenant_id", tenantID)

	previousRefreshToken := *conn.RefreshToken
	result, err := m.refresher.RefreshAccessToken(ctx, previousRefreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	scope := result.Scope
	if scope == "" && conn.Scope != nil {
		scope = *conn.Scope
	}

	err = m.connections.UpdateTokensCAS(ctx, tenantID, previousRefreshToken,
		result.AccessToken, result.RefreshToken, result.ExpiresAt, scope)
	if err != nil {
		if errors.Is(err, repository.ErrTokenConflict) {
			metrics.TokenRefreshes.WithLabelValues("conflict").Inc()
		} else {
			metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		}
		return nil, fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	m.logger.Info("Token refreshed", "tenant_id", tenantID, "expires_at", result.ExpiresAt)

	return &TokenSet{
		TenantID:         tenantID,
		ProviderTenantID: conn.ProviderTenantID,
		AccessToken:      result.AccessToken,
		RefreshToken:     result.RefreshToken,
		ExpiresAt:        result.ExpiresAt,
		Scope:            scope,
	}, nil
}

func (m *TokenManager) isTokenExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return true // Assume expired if no expiry time
	}
	return time.Now().Add(tokenExpirySkew).After(*expiresAt)
}

func tokenSetFromConnection(conn *models.Connection) *TokenSet {
	set := &TokenSet{
		TenantID:         conn.TenantID,
		ProviderTenantID: conn.ProviderTenantID,
		AccessToken:      *conn.AccessToken,
		RefreshToken:     *conn.RefreshToken,
	}
	if conn.ExpiresAt != nil {
		set.ExpiresAt = *conn.ExpiresAt
	}
	if conn.Scope != nil {
		set.Scope = *conn.Scope
	}
	return set
}
