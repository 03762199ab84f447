package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// wireProfile absorbs field-shape drift across backend revisions: singular
// vs plural risk keys, "name" vs "company_name", numeric vs string founded,
// and the int-vs-dict risk level split.
type wireProfile struct {
	CompanyName      string            `json:"company_name"`
	Name             string            `json:"name"`
	URL              string            `json:"url"`
	Founded          json.RawMessage   `json:"founded"`
	Founder          string            `json:"founder"`
	Email            string            `json:"email"`
	Address          json.RawMessage   `json:"address"`
	Description      string            `json:"description"`
	Summary          string            `json:"summary"`
	KeyIndividuals   map[string]any    `json:"key_individuals"`
	SecurityRisks    map[string]any    `json:"security_risks"`
	SecurityRisk     map[string]any    `json:"security_risk"`
	FinancialRisks   map[string]any    `json:"financial_risks"`
	FinancialRisk    map[string]any    `json:"financial_risk"`
	OperationalRisks map[string]any    `json:"operational_risks"`
	OperationalRisk  map[string]any    `json:"operational_risk"`
	KeyRelationships map[string]any    `json:"key_relationships"`
	RiskLevel        json.RawMessage   `json:"risk_level"`
	RiskLevelInt     json.RawMessage   `json:"risk_level_int"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	Timestamp        string            `json:"due_diligence_timestamp"`
	Logs             []json.RawMessage `json:"logs"`
}

// DecodeProfile normalizes one raw profile document (REST body or socket
// frame payload) into a canonical Snapshot. The original document is kept
// on Snapshot.Doc for full-document round trips.
func DecodeProfile(raw []byte) (Snapshot, error) {
	var w wireProfile
	if err := json.Unmarshal(raw, &w); err != nil {
		return Snapshot{}, fmt.Errorf("decode profile: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("decode profile document: %w", err)
	}

	name := w.CompanyName
	if name == "" {
		name = w.Name
	}
	p := Profile{
		CompanyName:      name,
		URL:              w.URL,
		Founded:          rawToString(w.Founded),
		Founder:          w.Founder,
		Email:            w.Email,
		Address:          decodeAddress(w.Address),
		Description:      w.Description,
		Summary:          w.Summary,
		KeyIndividuals:   w.KeyIndividuals,
		SecurityRisks:    firstMap(w.SecurityRisks, w.SecurityRisk),
		FinancialRisks:   firstMap(w.FinancialRisks, w.FinancialRisk),
		OperationalRisks: firstMap(w.OperationalRisks, w.OperationalRisk),
		KeyRelationships: w.KeyRelationships,
		RiskLevel:        NormalizeRiskLevel(w.RiskLevelInt, w.RiskLevel),
		Status:           CanonicalStatus(w.Status),
		Metadata:         w.Metadata,
		Timestamp:        w.Timestamp,
	}
	return Snapshot{Profile: p, Logs: DecodeLogs(w.Logs), Doc: doc}, nil
}

// NormalizeRiskLevel reduces the drifting risk level representations to a
// single integer in [0,5]. risk_level_int wins when present; a plain
// risk_level is accepted as a JSON number or numeric string. Dict-valued
// risk levels carry no documented schema and normalize to 0.
func NormalizeRiskLevel(intRaw, raw json.RawMessage) int {
	if v, ok := riskInt(intRaw); ok {
		return clampRisk(v)
	}
	if v, ok := riskInt(raw); ok {
		return clampRisk(v)
	}
	return 0
}

func riskInt(raw json.RawMessage) (int, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, false
		}
		v, err := strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			return 0, false
		}
		return v, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return int(f), true
}

func clampRisk(v int) int {
	if v < 0 {
		return 0
	}
	if v > 5 {
		return 5
	}
	return v
}

func decodeAddress(raw json.RawMessage) Address {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return Address{}
	}
	var a Address
	if err := json.Unmarshal(raw, &a); err == nil {
		return a
	}
	// Older revisions flatten the address into one string.
	var flat string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return Address{Street: flat}
	}
	return Address{}
}

func rawToString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}

func firstMap(maps ...map[string]any) map[string]any {
	for _, m := range maps {
		if m != nil {
			return m
		}
	}
	return nil
}
