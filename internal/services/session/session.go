package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"duedil/internal/domain"
	"duedil/internal/ports"
)

var (
	ErrEmptyURL        = errString("company url is empty")
	ErrNoActiveProfile = errString("no active profile")
	ErrNoCompany       = errString("no company loaded")
)

type errString string

func (e errString) Error() string { return string(e) }

// Session owns the due-diligence lifecycle for one company: the
// not-available → initiating → running → generated state machine, the live
// update subscription, and field-level edit reconciliation. Construct one
// per due-diligence view and Close it on teardown.
type Session struct {
	companies ports.CompanyAPI
	profiles  ports.ProfileAPI
	channels  ports.ChannelFactory
	log       *slog.Logger
	settle    time.Duration
	navigate  func(url string)
	listener  func(State)

	mu          sync.Mutex
	companyID   int64
	company     *domain.CompanyDetails
	companyDoc  map[string]any
	profile     *domain.Profile
	profileDoc  map[string]any
	logs        []domain.LogEntry
	url         string
	initiating  bool
	started     bool
	generated   bool
	cancelWatch context.CancelFunc
}

// State is a point-in-time copy of the derived lifecycle flags and cached
// documents, safe to read without holding the session.
type State struct {
	Company    *domain.CompanyDetails
	Profile    *domain.Profile
	Logs       []domain.LogEntry
	URL        string
	Initiating bool
	Started    bool
	Generated  bool
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithSettleDelay overrides the pause between a start acknowledgement and
// flipping the started flag.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) { s.settle = d }
}

// WithListener registers a callback invoked with a state copy after every
// change, outside the session lock. Views use it to re-render.
func WithListener(fn func(State)) Option {
	return func(s *Session) { s.listener = fn }
}

// WithNavigator installs the hook that propagates the active URL into the
// navigable application state; it is called with "" when the profile is
// deleted and the view should move away.
func WithNavigator(fn func(url string)) Option {
	return func(s *Session) { s.navigate = fn }
}

func New(companies ports.CompanyAPI, profiles ports.ProfileAPI, channels ports.ChannelFactory, opts ...Option) *Session {
	s := &Session{
		companies: companies,
		profiles:  profiles,
		channels:  channels,
		log:       slog.Default(),
		settle:    2 * time.Second,
		navigate:  func(string) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{
		Company:    s.company,
		Profile:    s.profile,
		URL:        s.url,
		Initiating: s.initiating,
		Started:    s.started,
		Generated:  s.generated,
	}
	st.Logs = make([]domain.LogEntry, len(s.logs))
	copy(st.Logs, s.logs)
	return st
}

func (s *Session) notify(st State) {
	if s.listener != nil {
		s.listener(st)
	}
}

// Load fetches the company record and, when its due-diligence status shows
// a run already exists, resumes watching it so a fresh session picks up an
// in-flight generation.
func (s *Session) Load(ctx context.Context, companyID int64) error {
	details, doc, err := s.companies.CompanyByID(ctx, companyID)
	if err != nil {
		return err
	}

	var resumeURL string
	s.mu.Lock()
	s.companyID = companyID
	s.company = &details
	s.companyDoc = doc
	ddStatus := domain.CanonicalStatus(details.DDStatus)
	if ddStatus != domain.StatusNotAvailable {
		s.started = true
		s.url = details.Website
		resumeURL = details.Website
		if ddStatus.Terminal() {
			s.generated = true
		} else {
			s.watchLocked(ports.Subject{ID: companyID, URL: details.Website})
		}
	}
	s.mu.Unlock()

	if resumeURL != "" {
		s.navigate(resumeURL)
	}
	s.notify(s.State())
	return nil
}

// Resume hydrates the session from a saved profile without opening a live
// subscription. Editing an already generated profile goes through here.
func (s *Session) Resume(ctx context.Context, url string) error {
	if url == "" {
		return ErrEmptyURL
	}
	snap, err := s.profiles.Profile(ctx, url, true, true)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.url = url
	s.started = true
	s.applySnapshotLocked(snap)
	s.mu.Unlock()

	s.navigate(url)
	s.notify(s.State())
	return nil
}

// Start kicks off a generation run for url. While a start is already in
// flight, or a run is active for the same company in a non-terminal state,
// it returns immediately without dispatching anything.
func (s *Session) Start(ctx context.Context, url string) error {
	if url == "" {
		return ErrEmptyURL
	}

	s.mu.Lock()
	if s.initiating || (s.started && !s.generated && SameCompany(s.url, url)) {
		s.mu.Unlock()
		return nil
	}
	s.initiating = true
	companyID := s.companyID
	var companySite string
	if s.company != nil {
		companySite = s.company.Website
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.initiating = false
		s.mu.Unlock()
	}()

	// The socket stream is addressed by numeric company id. When the
	// session was not loaded for this company, resolve the id through the
	// add endpoint, which upserts by website.
	if companyID == 0 || !SameCompany(companySite, url) {
		c, err := s.companies.AddCompany(ctx, url)
		if err != nil {
			s.log.Error("company resolve failed", "url", url, "error", err)
			return err
		}
		companyID = c.ID
		s.mu.Lock()
		s.companyID = companyID
		s.mu.Unlock()
	}

	if _, err := s.profiles.StartProfile(ctx, url); err != nil {
		s.log.Error("due diligence start failed", "url", url, "error", err)
		return err
	}

	// The backend acknowledges before the run is visible; give it a moment
	// before polling or resubscribing.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.settle):
	}

	s.mu.Lock()
	s.started = true
	s.generated = false
	s.url = url
	s.profile = nil
	s.profileDoc = nil
	s.logs = nil
	s.watchLocked(ports.Subject{ID: companyID, URL: url})
	s.mu.Unlock()

	s.navigate(url)
	s.notify(s.State())
	s.log.Info("due diligence started", "url", url)
	return nil
}

// Delete removes the tracked profile. Only on success is lifecycle state
// reset; a failed delete leaves everything in place so the caller can retry.
func (s *Session) Delete(ctx context.Context) error {
	s.mu.Lock()
	url := s.url
	s.mu.Unlock()
	if url == "" {
		return ErrNoActiveProfile
	}

	if err := s.profiles.DeleteProfile(ctx, url, true, true); err != nil {
		s.log.Error("profile delete failed", "url", url, "error", err)
		return err
	}

	s.mu.Lock()
	s.started = false
	s.generated = false
	s.initiating = false
	s.url = ""
	s.profile = nil
	s.profileDoc = nil
	s.logs = nil
	s.cancelWatchLocked()
	s.mu.Unlock()

	s.navigate("")
	s.notify(s.State())
	return nil
}

// Close tears down the live-update subscription. Call it when the owning
// view goes away; leaking the channel corrupts state across views.
func (s *Session) Close() {
	s.mu.Lock()
	s.cancelWatchLocked()
	s.mu.Unlock()
}

func (s *Session) watchLocked(sub ports.Subject) {
	s.cancelWatchLocked()
	if s.channels == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelWatch = cancel
	ch := s.channels(sub)
	go func() {
		if err := ch.Run(ctx, s); err != nil && ctx.Err() == nil {
			s.log.Warn("live update channel stopped", "url", sub.URL, "error", err)
		}
	}()
}

func (s *Session) cancelWatchLocked() {
	if s.cancelWatch != nil {
		s.cancelWatch()
		s.cancelWatch = nil
	}
}

// OnSnapshot implements ports.Sink. Snapshots replace the cached profile
// wholesale; events for a subscription that is no longer current are
// discarded.
func (s *Session) OnSnapshot(sub ports.Subject, snap domain.Snapshot) {
	s.mu.Lock()
	if sub.URL != s.url || s.generated {
		s.mu.Unlock()
		return
	}
	s.applySnapshotLocked(snap)
	st := s.stateLocked()
	s.mu.Unlock()
	s.notify(st)
}

// OnLog implements ports.Sink. Entries append in receipt order, never
// reordered, never deduplicated.
func (s *Session) OnLog(sub ports.Subject, entry domain.LogEntry) {
	s.mu.Lock()
	if sub.URL != s.url || s.generated {
		s.mu.Unlock()
		return
	}
	s.logs = append(s.logs, entry)
	st := s.stateLocked()
	s.mu.Unlock()
	s.notify(st)
}

// OnFinal implements ports.Sink.
func (s *Session) OnFinal(sub ports.Subject, snap domain.Snapshot) {
	s.mu.Lock()
	if sub.URL != s.url {
		s.mu.Unlock()
		return
	}
	s.applySnapshotLocked(snap)
	s.generated = true
	s.cancelWatchLocked()
	st := s.stateLocked()
	s.mu.Unlock()
	s.notify(st)
}

func (s *Session) applySnapshotLocked(snap domain.Snapshot) {
	p := snap.Profile
	s.profile = &p
	s.profileDoc = snap.Doc
	if snap.Logs != nil {
		s.logs = snap.Logs
	}
	if p.Status.Terminal() {
		s.generated = true
		s.cancelWatchLocked()
	}
}
