package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"duedil/internal/domain"
)

// Profile fetches the current snapshot for a company URL, including the
// full log history so far, normalized into the canonical schema.
func (c *Client) Profile(ctx context.Context, companyURL string, cached, saved bool) (domain.Snapshot, error) {
	var raw []byte
	path := fmt.Sprintf("/due-diligence/profile?company_url=%s&cached=%t&saved=%t",
		url.QueryEscape(companyURL), cached, saved)
	if err := c.get(ctx, path, &raw); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, err
	}
	snap, err := domain.DecodeProfile(raw)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if snap.Profile.URL == "" {
		snap.Profile.URL = companyURL
	}
	return snap, nil
}

func (c *Client) StartProfile(ctx context.Context, companyURL string) (domain.StartResult, error) {
	var out domain.StartResult
	path := "/due-diligence/start?company_url=" + url.QueryEscape(companyURL)
	if err := c.postJSON(ctx, path, struct{}{}, &out); err != nil {
		return domain.StartResult{}, err
	}
	return out, nil
}

// UpdateProfile submits the full profile document, not a patch.
func (c *Client) UpdateProfile(ctx context.Context, doc map[string]any) error {
	return c.putJSON(ctx, "/due-diligence/profile", doc, nil)
}

func (c *Client) DeleteProfile(ctx context.Context, companyURL string, cached, saved bool) error {
	path := fmt.Sprintf("/due-diligence/profile?company_url=%s&cached=%t&saved=%t",
		url.QueryEscape(companyURL), cached, saved)
	return c.delete(ctx, path, nil)
}
