package api

import (
	"context"
	"net/http"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
)

// DemoAccount fetches the paper trading account.
func (c *Client) DemoAccount(ctx context.Context) (*models.DemoAccount, error) {
	return c.demo(ctx, http.MethodGet, "/api/demo/account", nil)
}

// DemoTrade executes a paper trade and returns the account as the server
// now sees it.
func (c *Client) DemoTrade(ctx context.Context, req models.DemoTradeRequest) (*models.DemoAccount, error) {
	return c.demo(ctx, http.MethodPost, "/api/demo/trade", req)
}

// DemoReset restores the paper account to its starting balance.
func (c *Client) DemoReset(ctx context.Context) (*models.DemoAccount, error) {
	return c.demo(ctx, http.MethodPost, "/api/demo/reset", struct{}{})
}

func (c *Client) demo(ctx context.Context, method, path string, body interface{}) (*models.DemoAccount, error) {
	var out models.DemoAccount
	err := c.DoJSON(ctx, Request{
		Method: method,
		Path:   path,
		Body:   body,
		Shape:  apperrors.ShapeObject,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
