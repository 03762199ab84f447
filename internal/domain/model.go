package domain

// Core domain models used internally. Wire documents from the backend are
// normalized into these at the transport boundary; keep them decoupled from
// any single backend revision's field shapes.

type Company struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Progress   string `json:"progress,omitempty"`
	Status     string `json:"status"`
	DDStatus   string `json:"dd_status"`
	ReviewDate string `json:"review_date,omitempty"`
	Country    string `json:"country"`
	Industry   string `json:"industry"`
}

type CompanyPage struct {
	Total     int       `json:"total"`
	Offset    int       `json:"offset"`
	Limit     int       `json:"limit"`
	Companies []Company `json:"companies"`
}

type CompanyDetails struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"name"`
	Website            string            `json:"website"`
	Status             string            `json:"status"`
	DDStatus           string            `json:"dd_status"`
	Industry           string            `json:"industry"`
	Country            string            `json:"country"`
	ReviewDate         string            `json:"review_date"`
	Products           []string          `json:"products"`
	ContactInformation map[string]string `json:"contact_information"`
	RiskLevel          int               `json:"risk_level"`
	AddedTimestamp     string            `json:"added_timestamp"`
	Details            Details           `json:"details"`
	CompanyProfile     string            `json:"company_profile"`
}

type Details struct {
	Subindustry      string   `json:"subindustry"`
	ProductPortfolio []string `json:"productPortfolio"`
	ServicePortfolio []string `json:"servicePortfolio"`
	Specializations  []string `json:"specializations"`
	CompanySize      string   `json:"companySize"`
	QualityStandards []string `json:"qualityStandards"`
	Tools            []string `json:"specific_tools_and_technologies"`
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// Profile is the canonical due-diligence risk document for one company.
// The risk dictionaries are arbitrarily nested string-keyed maps; their
// inner shape is backend-revision dependent and passed through untouched.
type Profile struct {
	CompanyName      string            `json:"company_name"`
	URL              string            `json:"url"`
	Founded          string            `json:"founded"`
	Founder          string            `json:"founder"`
	Email            string            `json:"email,omitempty"`
	Address          Address           `json:"address"`
	Description      string            `json:"description"`
	Summary          string            `json:"summary,omitempty"`
	KeyIndividuals   map[string]any    `json:"key_individuals"`
	SecurityRisks    map[string]any    `json:"security_risks"`
	FinancialRisks   map[string]any    `json:"financial_risks"`
	OperationalRisks map[string]any    `json:"operational_risks"`
	KeyRelationships map[string]any    `json:"key_relationships"`
	RiskLevel        int               `json:"risk_level_int"`
	Status           Status            `json:"status"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Timestamp        string            `json:"due_diligence_timestamp,omitempty"`
}

// LogEntry is one progress message emitted by a backend analysis agent
// during a generation run.
type LogEntry struct {
	Agent     string `json:"agent"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Snapshot is one full fetch/frame of a profile in flight: the document as
// it stands plus the complete log history so far. Snapshots replace prior
// state wholesale; they are never deltas.
type Snapshot struct {
	Profile Profile
	Logs    []LogEntry

	// Doc is the raw wire document the snapshot was decoded from. The edit
	// reconciliation layer merges field overrides into it so that full-document
	// updates round-trip backend-only fields the canonical schema drops.
	Doc map[string]any
}

type StartResult struct {
	Msg    string `json:"msg"`
	Status string `json:"status"`
}

type DocumentSearch struct {
	Companies       []Company `json:"companies_list"`
	DocumentProfile any       `json:"document_profile"`
}

var ErrNotFound = errString("not found")

type errString string

func (e errString) Error() string { return string(e) }
