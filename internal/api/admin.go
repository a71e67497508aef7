package api

import (
	"context"
	"net/http"
	"net/url"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
)

// RecentSignals fetches the latest signal of every trader.
func (c *Client) RecentSignals(ctx context.Context) ([]models.TraderSignal, error) {
	var out []models.TraderSignal
	if err := c.DoJSON(ctx, Request{Path: "/api/trader-signals/recent", Shape: apperrors.ShapeArray}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Deposits lists all deposits, pending first. Admin only.
func (c *Client) Deposits(ctx context.Context) ([]models.TransferRecord, error) {
	return c.transfers(ctx, "/api/admin/deposits")
}

// Withdrawals lists all withdrawals. Admin only.
func (c *Client) Withdrawals(ctx context.Context) ([]models.TransferRecord, error) {
	return c.transfers(ctx, "/api/admin/withdrawals")
}

func (c *Client) transfers(ctx context.Context, path string) ([]models.TransferRecord, error) {
	var out []models.TransferRecord
	if err := c.DoJSON(ctx, Request{Path: path, Shape: apperrors.ShapeArray, Auth: AuthPrimary}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveDeposit approves a pending deposit. Admin only.
func (c *Client) ApproveDeposit(ctx context.Context, id models.ID) error {
	return c.review(ctx, "deposit", "approve", id)
}

// DeclineDeposit declines a pending deposit. Admin only.
func (c *Client) DeclineDeposit(ctx context.Context, id models.ID) error {
	return c.review(ctx, "deposit", "decline", id)
}

// ApproveWithdrawal approves a pending withdrawal. Admin only.
func (c *Client) ApproveWithdrawal(ctx context.Context, id models.ID) error {
	return c.review(ctx, "withdrawal", "approve", id)
}

// DeclineWithdrawal declines a pending withdrawal. Admin only.
func (c *Client) DeclineWithdrawal(ctx context.Context, id models.ID) error {
	return c.review(ctx, "withdrawal", "decline", id)
}

func (c *Client) review(ctx context.Context, kind, action string, id models.ID) error {
	_, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/admin/" + kind + "/" + action + "/" + url.PathEscape(id.String()),
		Body:   struct{}{},
		Auth:   AuthPrimary,
	})
	return err
}

// AdminCryptoAddresses fetches the deposit addresses for editing. Admin only.
func (c *Client) AdminCryptoAddresses(ctx context.Context) (*models.CryptoAddresses, error) {
	var out models.CryptoAddresses
	if err := c.DoJSON(ctx, Request{Path: "/api/admin/crypto-addresses", Shape: apperrors.ShapeObject, Auth: AuthPrimary}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCryptoAddresses replaces the deposit addresses. qr maps a coin such
// as "BTC" to an optional QR image, sent as the "<coin>_QR" part.
func (c *Client) UpdateCryptoAddresses(ctx context.Context, addrs models.CryptoAddresses, qr map[string]Upload) (*models.MessageResponse, error) {
	fields := make(map[string]string, len(models.CryptoCurrencies))
	var files []Upload
	for _, coin := range models.CryptoCurrencies {
		fields[coin] = addrs.Address(coin)
		if up, ok := qr[coin]; ok {
			up.Field = coin + "_QR"
			files = append(files, up)
		}
	}

	raw, err := c.DoMultipart(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/admin/crypto-addresses",
		Shape:  apperrors.ShapeAny,
		Auth:   AuthPrimary,
	}, fields, files)
	if err != nil {
		return nil, err
	}

	var out models.MessageResponse
	if err := decode("/api/admin/crypto-addresses", apperrors.ShapeAny, raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
