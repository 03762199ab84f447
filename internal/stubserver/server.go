// Package stubserver is an in-memory stand-in for the scraping/risk-analysis
// backend: the documented REST surface, the /ws/profile/{id} stream, and a
// scripted generation run. It exists for local development and tests; the
// real backend is an external collaborator.
package stubserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"duedil/internal/domain"
)

type Server struct {
	log       *slog.Logger
	stepDelay time.Duration

	mu        sync.Mutex
	nextID    int64
	companies map[int64]map[string]any
	runs      map[string]*run
	watchers  map[int64][]chan wsFrame
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithStepDelay sets the pause between scripted generation steps. Tests use
// a very small value to drive full runs quickly.
func WithStepDelay(d time.Duration) Option {
	return func(s *Server) { s.stepDelay = d }
}

func New(opts ...Option) *Server {
	s := &Server{
		log:       slog.Default(),
		stepDelay: 500 * time.Millisecond,
		companies: make(map[int64]map[string]any),
		runs:      make(map[string]*run),
		watchers:  make(map[int64][]chan wsFrame),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router mounts the REST surface under /api and the websocket at
// /ws/profile/{id}, mirroring the production path layout.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/companies", s.listCompanies)
		r.Get("/companies/id/{id}", s.companyByID)
		r.Get("/companies/similar", s.similarCompanies)
		r.Post("/companies/by-document", s.companiesByDocument)
		r.Post("/companies/add", s.addCompany)
		r.Put("/companies/{id}", s.updateCompany)
		r.Delete("/companies/{id}", s.deleteCompany)

		r.Get("/due-diligence/profile", s.getProfile)
		r.Post("/due-diligence/start", s.startProfile)
		r.Put("/due-diligence/profile", s.updateProfile)
		r.Delete("/due-diligence/profile", s.deleteProfile)
	})
	r.Get("/ws/profile/{id}", s.profileSocket)
	return r
}

// SeedCompany registers a company record and returns its id.
func (s *Server) SeedCompany(name, website string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.companies[id] = map[string]any{
		"id":                  id,
		"name":                name,
		"website":             website,
		"status":              "Available",
		"dd_status":           "not available",
		"industry":            "Unknown",
		"country":             "Unknown",
		"review_date":         "",
		"products":            []any{},
		"contact_information": map[string]any{},
		"risk_level":          0,
		"added_timestamp":     time.Now().UTC().Format(time.RFC3339),
		"details":             map[string]any{},
		"company_profile":     "",
	}
	return id
}

func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.URL.Query().Get("query"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	const limit = 20

	s.mu.Lock()
	all := make([]map[string]any, 0, len(s.companies))
	for id := int64(1); id <= s.nextID; id++ {
		doc, ok := s.companies[id]
		if !ok {
			continue
		}
		name, _ := doc["name"].(string)
		if query != "" && !strings.Contains(strings.ToLower(name), query) {
			continue
		}
		all = append(all, copyDoc(doc))
	}
	s.mu.Unlock()

	total := len(all)
	if offset > total {
		offset = total
	}
	page := all[offset:min(offset+limit, total)]
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"offset":    offset,
		"limit":     limit,
		"companies": page,
	})
}

func (s *Server) companyByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	s.mu.Lock()
	doc, ok := s.companies[id]
	if ok {
		doc = copyDoc(doc)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "company not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) similarCompanies(w http.ResponseWriter, r *http.Request) {
	text := strings.ToLower(r.URL.Query().Get("text"))
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	if n <= 0 {
		n = 10
	}

	// Nearest-match here is a crude token overlap; good enough for a stub.
	s.mu.Lock()
	out := make([]map[string]any, 0, n)
	for id := int64(1); id <= s.nextID && len(out) < n; id++ {
		doc, ok := s.companies[id]
		if !ok {
			continue
		}
		profile, _ := doc["company_profile"].(string)
		name, _ := doc["name"].(string)
		if text == "" || overlaps(text, strings.ToLower(name+" "+profile)) {
			out = append(out, copyDoc(doc))
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) companiesByDocument(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}

	s.mu.Lock()
	out := make([]map[string]any, 0)
	for id := int64(1); id <= s.nextID && len(out) < 10; id++ {
		if doc, ok := s.companies[id]; ok {
			out = append(out, copyDoc(doc))
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"companies_list": out,
		"document_profile": map[string]any{
			"filename": header.Filename,
			"size":     len(content),
		},
	})
}

func (s *Server) addCompany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Website string `json:"website"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Website == "" {
		writeError(w, http.StatusBadRequest, "website is required")
		return
	}

	// Adding an already known website is an upsert: the existing record
	// comes back instead of a duplicate.
	s.mu.Lock()
	if id, doc := s.findCompanyByURL(req.Website); id != 0 {
		out := copyDoc(doc)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
		return
	}
	s.mu.Unlock()

	name := req.Website
	if u, err := url.Parse(withScheme(req.Website)); err == nil && u.Hostname() != "" {
		name = strings.TrimPrefix(u.Hostname(), "www.")
	}
	id := s.SeedCompany(name, req.Website)
	s.mu.Lock()
	doc := copyDoc(s.companies[id])
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) updateCompany(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid company document")
		return
	}
	s.mu.Lock()
	_, ok := s.companies[id]
	if ok {
		doc["id"] = id
		s.companies[id] = doc
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "company not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"msg": "updated", "status": "ok"})
}

func (s *Server) deleteCompany(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	s.mu.Lock()
	_, ok := s.companies[id]
	delete(s.companies, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "company not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"msg": "deleted", "status": "ok"})
}

func (s *Server) findCompanyByURL(companyURL string) (int64, map[string]any) {
	for id := int64(1); id <= s.nextID; id++ {
		doc, ok := s.companies[id]
		if !ok {
			continue
		}
		site, _ := doc["website"].(string)
		if site == companyURL {
			return id, doc
		}
	}
	return 0, nil
}

func (s *Server) setDDStatus(companyID int64, status domain.Status) {
	if doc, ok := s.companies[companyID]; ok {
		doc["dd_status"] = status.String()
	}
}

// copyDoc shallow-copies a company document under the lock so encoding can
// happen outside it while the generation goroutine keeps mutating the
// original's top-level keys.
func copyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func withScheme(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

func overlaps(a, b string) bool {
	for _, tok := range strings.Fields(a) {
		if len(tok) > 3 && strings.Contains(b, tok) {
			return true
		}
	}
	return false
}
