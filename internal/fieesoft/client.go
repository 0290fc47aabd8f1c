// Package fieesoft is the client for the FIEESOFT inventory API. Every
// operation resolves configuration at call time, logs in with a fresh
// session and normalizes the response. Recoverable failures are returned as
// *envelope.Error.
package fieesoft

import (
	"context"
	"fmt"

	"github.com/ainventory/ainventory-server/internal/config"
	"github.com/ainventory/ainventory-server/internal/envelope"
	"go.uber.org/zap"
)

const assetsPath = "/api/bienes"

// ErrHistoryNotImplemented is returned by AssetLocationHistory.
var ErrHistoryNotImplemented = fmt.Errorf("%w: No implementado en el API remoto (placeholder)", envelope.ErrNotImplemented)

// Client performs inventory operations.
type Client struct {
	provider config.Provider
	logger   *zap.Logger
	opts     []SessionOption
}

// NewClient creates a Client that reads its configuration from provider on
// every call.
func NewClient(provider config.Provider, logger *zap.Logger, opts ...SessionOption) *Client {
	return &Client{
		provider: provider,
		logger:   logger,
		opts:     opts,
	}
}

func (c *Client) login(ctx context.Context) (*Session, error) {
	cfg := c.provider.Fieesoft()
	sess, err := NewSession(ctx, cfg, c.opts...)
	if err != nil {
		c.logger.Warn("fieesoft login failed",
			zap.String("base_url", cfg.BaseURL),
			zap.Error(err),
		)
		return nil, envelope.Login(err)
	}
	c.logger.Debug("fieesoft session established",
		zap.String("base_url", sess.BaseURL()),
		zap.Duration("timeout", sess.Timeout()),
	)
	return sess, nil
}

// SearchAssets runs GET /api/bienes with the given filters and returns the
// normalized page.
func (c *Client) SearchAssets(ctx context.Context, q SearchQuery) (*Page, error) {
	sess, err := c.login(ctx)
	if err != nil {
		return nil, err
	}

	url := sess.URL(assetsPath)
	resp, err := sess.Get(ctx, assetsPath, q.Values())
	if err != nil {
		return nil, envelope.Transport(url, err)
	}
	if !resp.OK() {
		c.logger.Warn("fieesoft search rejected",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return nil, envelope.HTTPStatus(url, resp.Status, resp.Body)
	}

	data, err := decodeJSON(resp.Body)
	if err != nil {
		return nil, envelope.Decode(resp.Body, err)
	}

	page := Classify(data)
	c.logger.Debug("fieesoft search completed",
		zap.String("shape", page.Shape.String()),
		zap.Int("total_elements", page.TotalElements),
	)
	return page, nil
}

// GetAsset runs GET /api/bienes/{id} and returns the decoded body verbatim.
// A nil id fails before any network call.
func (c *Client) GetAsset(ctx context.Context, id *int64) (any, error) {
	if id == nil {
		return nil, envelope.MissingArgument("id es requerido")
	}

	sess, err := c.login(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/%d", assetsPath, *id)
	url := sess.URL(path)
	resp, err := sess.Get(ctx, path, nil)
	if err != nil {
		return nil, envelope.WithStatusFields(envelope.Transport(url, err))
	}
	if !resp.OK() {
		c.logger.Warn("fieesoft asset lookup rejected",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return nil, envelope.WithStatusFields(envelope.HTTPStatus(url, resp.Status, resp.Body))
	}

	data, err := decodeJSON(resp.Body)
	if err != nil {
		return nil, envelope.Decode(resp.Body, err)
	}
	return data, nil
}

// AssetLocationHistory is declared by the inventory API contract but not
// served by the backend. It always fails with ErrHistoryNotImplemented.
func (c *Client) AssetLocationHistory(_ context.Context, _ *int64) (any, error) {
	return nil, ErrHistoryNotImplemented
}
