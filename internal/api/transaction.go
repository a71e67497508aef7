package api

import (
	"context"
	"net/http"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
)

// Deposit submits a deposit request for review.
func (c *Client) Deposit(ctx context.Context, req models.DepositRequest) (*models.MessageResponse, error) {
	return c.postMessage(ctx, "/api/transaction/deposit", req, AuthEffective)
}

// Withdraw submits a withdrawal request. The receive address is only sent
// for crypto withdrawals.
func (c *Client) Withdraw(ctx context.Context, req models.WithdrawRequest) (*models.MessageResponse, error) {
	if req.Type != models.TransferCrypto {
		req.ReceiveAddress = ""
	}
	return c.postMessage(ctx, "/api/transaction/withdraw", req, AuthEffective)
}

// CreditUser adds funds to a user's wallet. Admin only.
func (c *Client) CreditUser(ctx context.Context, req models.AdminTransferRequest) (*models.MessageResponse, error) {
	return c.postMessage(ctx, "/api/transaction/admin/deposit", req, AuthPrimary)
}

// DeductUser removes funds from a user's wallet. Admin only.
func (c *Client) DeductUser(ctx context.Context, req models.AdminTransferRequest) (*models.MessageResponse, error) {
	return c.postMessage(ctx, "/api/transaction/admin/deduct", req, AuthPrimary)
}

// ClearDeposits deletes the deposit history. Admin only.
func (c *Client) ClearDeposits(ctx context.Context) error {
	_, err := c.Do(ctx, Request{
		Method: http.MethodDelete,
		Path:   "/api/transaction/deposits/clear",
		Shape:  apperrors.ShapeAny,
		Auth:   AuthPrimary,
	})
	return err
}
