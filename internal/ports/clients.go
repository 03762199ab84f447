package ports

import (
	"context"
	"io"

	"duedil/internal/domain"
)

// CompanyAPI is the backend's company surface. Update takes the full merged
// document, never a partial patch; callers refetch after writing instead of
// trusting their local copy.
type CompanyAPI interface {
	Companies(ctx context.Context, query string, offset int) (domain.CompanyPage, error)
	CompanyByID(ctx context.Context, id int64) (domain.CompanyDetails, map[string]any, error)
	SimilarCompanies(ctx context.Context, text string, n int) ([]domain.Company, error)
	CompaniesByDocument(ctx context.Context, filename string, file io.Reader) (domain.DocumentSearch, error)
	AddCompany(ctx context.Context, website string) (domain.Company, error)
	UpdateCompany(ctx context.Context, id int64, doc map[string]any) error
	DeleteCompany(ctx context.Context, id int64) error
}

// ProfileAPI is the backend's due-diligence surface, keyed by company URL.
type ProfileAPI interface {
	Profile(ctx context.Context, companyURL string, cached, saved bool) (domain.Snapshot, error)
	StartProfile(ctx context.Context, companyURL string) (domain.StartResult, error)
	UpdateProfile(ctx context.Context, doc map[string]any) error
	DeleteProfile(ctx context.Context, companyURL string, cached, saved bool) error
}
