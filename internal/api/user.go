package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
)

// Wallet fetches the balance summary.
func (c *Client) Wallet(ctx context.Context) (*models.Wallet, error) {
	var out models.Wallet
	if err := c.DoJSON(ctx, Request{Path: "/api/user/wallet", Shape: apperrors.ShapeObject}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches the account profile.
func (c *Client) Profile(ctx context.Context) (*models.Profile, error) {
	var out models.Profile
	if err := c.DoJSON(ctx, Request{Path: "/api/user/profile", Shape: apperrors.ShapeObject}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile saves the profile and returns the server's copy.
func (c *Client) UpdateProfile(ctx context.Context, p models.Profile) (*models.Profile, error) {
	var out struct {
		User models.Profile `json:"user"`
	}
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPut,
		Path:   "/api/user/profile",
		Body:   p,
		Shape:  apperrors.ShapeObject,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Activity fetches the most recent limit entries. The server answers either
// with a bare array or with {"activity": [...]}; anything else is malformed.
func (c *Client) Activity(ctx context.Context, limit int) ([]models.Activity, error) {
	const path = "/api/user/activity"
	raw, err := c.Do(ctx, Request{
		Path:  path,
		Query: url.Values{"limit": {strconv.Itoa(limit)}},
		Shape: apperrors.ShapeAny,
	})
	if err != nil {
		return nil, err
	}

	var out []models.Activity
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := decode(path, apperrors.ShapeArray, raw, &out); err != nil {
			return nil, err
		}
	case len(trimmed) > 0 && trimmed[0] == '{':
		var wrapped struct {
			Activity json.RawMessage `json:"activity"`
		}
		if err := decode(path, apperrors.ShapeObject, raw, &wrapped); err != nil {
			return nil, err
		}
		inner := bytes.TrimSpace(wrapped.Activity)
		if len(inner) == 0 || inner[0] != '[' {
			return nil, apperrors.NewMalformedResponseError(path, apperrors.ShapeArray, "object without activity array", nil)
		}
		if err := decode(path, apperrors.ShapeArray, inner, &out); err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.NewMalformedResponseError(path, apperrors.ShapeArray, describe(trimmed), nil)
	}
	if out == nil {
		out = []models.Activity{}
	}
	return out, nil
}

// CryptoAddresses fetches the platform deposit addresses.
func (c *Client) CryptoAddresses(ctx context.Context) (*models.CryptoAddresses, error) {
	var out models.CryptoAddresses
	if err := c.DoJSON(ctx, Request{Path: "/api/user/crypto-addresses", Shape: apperrors.ShapeObject}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Users lists every account. Admin only.
func (c *Client) Users(ctx context.Context) ([]models.Profile, error) {
	var out []models.Profile
	if err := c.DoJSON(ctx, Request{Path: "/api/user/all", Shape: apperrors.ShapeArray, Auth: AuthPrimary}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateUser edits another account. Admin only.
func (c *Client) UpdateUser(ctx context.Context, id models.ID, p models.Profile) error {
	_, err := c.Do(ctx, Request{
		Method: http.MethodPut,
		Path:   "/api/user/" + url.PathEscape(id.String()),
		Body:   p,
		Auth:   AuthPrimary,
	})
	return err
}

// DeleteUser removes an account. Admin only.
func (c *Client) DeleteUser(ctx context.Context, id models.ID) error {
	_, err := c.Do(ctx, Request{
		Method: http.MethodDelete,
		Path:   "/api/user/" + url.PathEscape(id.String()),
		Auth:   AuthPrimary,
	})
	return err
}
