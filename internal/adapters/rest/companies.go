package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"duedil/internal/domain"
)

func (c *Client) Companies(ctx context.Context, query string, offset int) (domain.CompanyPage, error) {
	path := "/companies"
	if query != "" {
		path = fmt.Sprintf("/companies?query=%s&offset=%d", url.QueryEscape(query), offset)
	}
	var page domain.CompanyPage
	if err := c.get(ctx, path, &page); err != nil {
		return domain.CompanyPage{}, err
	}
	return page, nil
}

// CompanyByID returns the canonical details plus the raw wire document so
// callers can round-trip fields the canonical schema does not carry.
func (c *Client) CompanyByID(ctx context.Context, id int64) (domain.CompanyDetails, map[string]any, error) {
	var raw []byte
	if err := c.get(ctx, fmt.Sprintf("/companies/id/%d", id), &raw); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return domain.CompanyDetails{}, nil, domain.ErrNotFound
		}
		return domain.CompanyDetails{}, nil, err
	}
	var details domain.CompanyDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return domain.CompanyDetails{}, nil, fmt.Errorf("decode company: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.CompanyDetails{}, nil, fmt.Errorf("decode company document: %w", err)
	}
	return details, doc, nil
}

func (c *Client) SimilarCompanies(ctx context.Context, text string, n int) ([]domain.Company, error) {
	var out []domain.Company
	path := fmt.Sprintf("/companies/similar?text=%s&n=%d", url.QueryEscape(text), n)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CompaniesByDocument uploads a document and returns the backend's nearest
// company candidates along with the profile it derived from the file.
func (c *Client) CompaniesByDocument(ctx context.Context, filename string, file io.Reader) (domain.DocumentSearch, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return domain.DocumentSearch{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return domain.DocumentSearch{}, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return domain.DocumentSearch{}, err
	}
	var out domain.DocumentSearch
	if err := c.do(ctx, http.MethodPost, "/companies/by-document?k=10", &buf, mw.FormDataContentType(), &out); err != nil {
		return domain.DocumentSearch{}, err
	}
	return out, nil
}

func (c *Client) AddCompany(ctx context.Context, website string) (domain.Company, error) {
	var out domain.Company
	body := map[string]string{"website": website}
	if err := c.postJSON(ctx, "/companies/add", body, &out); err != nil {
		return domain.Company{}, err
	}
	return out, nil
}

// UpdateCompany submits the full company document. Callers must refetch
// afterwards; the backend may keep mutating the record during generation.
func (c *Client) UpdateCompany(ctx context.Context, id int64, doc map[string]any) error {
	return c.putJSON(ctx, fmt.Sprintf("/companies/%d", id), doc, nil)
}

func (c *Client) DeleteCompany(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/companies/%d", id), nil)
}
