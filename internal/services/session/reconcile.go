package session

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Edit reconciliation: every local edit is a full read-modify-write cycle.
// The last fetched document gets one field overlaid, the whole merged
// document goes to the backend, and the record is refetched rather than
// trusting the optimistic local copy — the backend may still be enriching
// the same document.

// UpdateProfileKey overlays one profile field (dotted paths reach one level
// into a nested object) and submits the full merged document.
func (s *Session) UpdateProfileKey(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	if s.profileDoc == nil {
		s.mu.Unlock()
		return ErrNoActiveProfile
	}
	doc := cloneDoc(s.profileDoc)
	url := s.url
	s.mu.Unlock()

	MergeKey(doc, key, value)
	if err := s.profiles.UpdateProfile(ctx, doc); err != nil {
		return err
	}

	snap, err := s.profiles.Profile(ctx, url, true, true)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if url == s.url {
		s.applySnapshotLocked(snap)
	}
	s.mu.Unlock()
	return nil
}

// UpdateCompanyKey does the same for the company record, then invalidates
// and refetches it; the local copy is never trusted past the write.
func (s *Session) UpdateCompanyKey(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	if s.companyDoc == nil {
		s.mu.Unlock()
		return ErrNoCompany
	}
	doc := cloneDoc(s.companyDoc)
	id := s.companyID
	s.mu.Unlock()

	MergeKey(doc, key, value)
	if err := s.companies.UpdateCompany(ctx, id, doc); err != nil {
		return err
	}

	details, rawDoc, err := s.companies.CompanyByID(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if id == s.companyID {
		s.company = &details
		s.companyDoc = rawDoc
	}
	s.mu.Unlock()
	return nil
}

// MergeKey sets key in doc. A dotted key like "details.subindustry"
// addresses one level of nesting; the intermediate object is created when
// absent instead of failing.
func MergeKey(doc map[string]any, key string, value any) {
	parent, sub, nested := strings.Cut(key, ".")
	if !nested {
		doc[key] = value
		return
	}
	inner, _ := doc[parent].(map[string]any)
	if inner == nil {
		inner = make(map[string]any)
		doc[parent] = inner
	}
	inner[sub] = value
}

// SplitList turns a comma-joined string back into the array the backend
// stores for fields like specializations. The split is naive: values that
// themselves contain literal commas come apart, matching what the
// production backend already holds.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// cloneDoc deep-copies a wire document so merges never mutate the cached
// copy that a concurrent snapshot might be replacing.
func cloneDoc(doc map[string]any) map[string]any {
	b, err := json.Marshal(doc)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// SameCompany compares two company URLs by registrable domain (eTLD+1), so
// "https://www.edda.lu/about" and "edda.lu" count as the same active run.
func SameCompany(a, b string) bool {
	if a == b {
		return true
	}
	ra, rb := registrable(a), registrable(b)
	return ra != "" && ra == rb
}

func registrable(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return reg
}
