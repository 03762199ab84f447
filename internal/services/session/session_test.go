package session

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duedil/internal/domain"
	"duedil/internal/ports"
)

// fakeBackend implements both client ports with scripted responses and
// call recording.
type fakeBackend struct {
	mu             sync.Mutex
	company        domain.CompanyDetails
	companyDoc     map[string]any
	companyErr     error
	profileSnap    domain.Snapshot
	profileErr     error
	startCalls     int
	startErr       error
	addCalls       int
	addID          int64
	deleteCalls    int
	deleteErr      error
	profileUpdates []map[string]any
	companyUpdates []map[string]any
}

func (f *fakeBackend) Companies(ctx context.Context, query string, offset int) (domain.CompanyPage, error) {
	return domain.CompanyPage{}, nil
}

func (f *fakeBackend) CompanyByID(ctx context.Context, id int64) (domain.CompanyDetails, map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.companyErr != nil {
		return domain.CompanyDetails{}, nil, f.companyErr
	}
	return f.company, f.companyDoc, nil
}

func (f *fakeBackend) SimilarCompanies(ctx context.Context, text string, n int) ([]domain.Company, error) {
	return nil, nil
}

func (f *fakeBackend) CompaniesByDocument(ctx context.Context, filename string, file io.Reader) (domain.DocumentSearch, error) {
	return domain.DocumentSearch{}, nil
}

func (f *fakeBackend) AddCompany(ctx context.Context, website string) (domain.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	return domain.Company{ID: f.addID}, nil
}

func (f *fakeBackend) UpdateCompany(ctx context.Context, id int64, doc map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.companyUpdates = append(f.companyUpdates, doc)
	return nil
}

func (f *fakeBackend) DeleteCompany(ctx context.Context, id int64) error { return nil }

func (f *fakeBackend) Profile(ctx context.Context, companyURL string, cached, saved bool) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return domain.Snapshot{}, f.profileErr
	}
	return f.profileSnap, nil
}

func (f *fakeBackend) StartProfile(ctx context.Context, companyURL string) (domain.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return domain.StartResult{}, f.startErr
	}
	return domain.StartResult{Msg: "started"}, nil
}

func (f *fakeBackend) UpdateProfile(ctx context.Context, doc map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileUpdates = append(f.profileUpdates, doc)
	return nil
}

func (f *fakeBackend) DeleteProfile(ctx context.Context, companyURL string, cached, saved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	return f.deleteErr
}

// idleChannel blocks until cancelled; tests drive the session's sink
// methods directly instead.
type idleChannel struct{}

func (idleChannel) Run(ctx context.Context, sink ports.Sink) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestSession(b *fakeBackend, opts ...Option) (*Session, *[]ports.Subject) {
	var mu sync.Mutex
	subjects := &[]ports.Subject{}
	factory := func(sub ports.Subject) ports.Channel {
		mu.Lock()
		*subjects = append(*subjects, sub)
		mu.Unlock()
		return idleChannel{}
	}
	opts = append([]Option{WithSettleDelay(0)}, opts...)
	return New(b, b, factory, opts...), subjects
}

const acmeURL = "https://www.acme.example"

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	b := &fakeBackend{}
	sess, subjects := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	require.NoError(t, sess.Start(context.Background(), acmeURL))
	// Same registrable domain counts as the same active run.
	require.NoError(t, sess.Start(context.Background(), "acme.example"))

	assert.Equal(t, 1, b.startCalls)
	assert.Len(t, *subjects, 1)

	st := sess.State()
	assert.True(t, st.Started)
	assert.False(t, st.Generated)
	assert.Equal(t, acmeURL, st.URL)
}

func TestStartAllowedAgainAfterTerminal(t *testing.T) {
	b := &fakeBackend{}
	sess, _ := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	sub := ports.Subject{URL: acmeURL}
	sess.OnFinal(sub, domain.Snapshot{Profile: domain.Profile{Status: domain.StatusGenerated}})
	require.True(t, sess.State().Generated)

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	assert.Equal(t, 2, b.startCalls)
	assert.False(t, sess.State().Generated)
}

func TestStartFailureReleasesGuardAndSurfacesError(t *testing.T) {
	b := &fakeBackend{startErr: errString("generator down")}
	sess, subjects := newTestSession(b)
	defer sess.Close()

	err := sess.Start(context.Background(), acmeURL)
	require.Error(t, err)

	st := sess.State()
	assert.False(t, st.Initiating)
	assert.False(t, st.Started)
	assert.Empty(t, st.URL)
	assert.Empty(t, *subjects)

	// The attempt guard is released; a retry dispatches again.
	b.mu.Lock()
	b.startErr = nil
	b.mu.Unlock()
	require.NoError(t, sess.Start(context.Background(), acmeURL))
	assert.Equal(t, 2, b.startCalls)
	assert.True(t, sess.State().Started)
	assert.Len(t, *subjects, 1)
}

func TestStartWithoutLoadResolvesCompanyID(t *testing.T) {
	b := &fakeBackend{addID: 42}
	sess, subjects := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	assert.Equal(t, 1, b.addCalls)
	require.Len(t, *subjects, 1)
	assert.Equal(t, int64(42), (*subjects)[0].ID)
	assert.Equal(t, acmeURL, (*subjects)[0].URL)
}

func TestStartAfterLoadKeepsLoadedCompanyID(t *testing.T) {
	b := &fakeBackend{
		company: domain.CompanyDetails{ID: 7, Name: "Acme", Website: acmeURL, DDStatus: "not available"},
	}
	sess, subjects := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Load(context.Background(), 7))
	require.NoError(t, sess.Start(context.Background(), acmeURL))

	assert.Zero(t, b.addCalls)
	require.Len(t, *subjects, 1)
	assert.Equal(t, int64(7), (*subjects)[0].ID)
}

func TestStartRejectsEmptyURL(t *testing.T) {
	b := &fakeBackend{}
	sess, _ := newTestSession(b)
	defer sess.Close()
	assert.ErrorIs(t, sess.Start(context.Background(), ""), ErrEmptyURL)
}

func TestStartClearsPreviousRunState(t *testing.T) {
	b := &fakeBackend{}
	sess, _ := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	sub := ports.Subject{URL: acmeURL}
	sess.OnLog(sub, domain.LogEntry{Agent: "A", Message: "old line"})
	sess.OnFinal(sub, domain.Snapshot{Profile: domain.Profile{Status: domain.StatusGenerated}})

	require.NoError(t, sess.Start(context.Background(), "https://other.example"))
	st := sess.State()
	assert.Empty(t, st.Logs)
	assert.Nil(t, st.Profile)
	assert.Equal(t, "https://other.example", st.URL)
}

func TestLogsAppendInReceiptOrder(t *testing.T) {
	b := &fakeBackend{}
	sess, _ := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	sub := ports.Subject{URL: acmeURL}
	sess.OnLog(sub, domain.LogEntry{Agent: "B", Message: "second agent spoke first"})
	sess.OnLog(sub, domain.LogEntry{Agent: "A", Message: "first agent spoke second"})
	sess.OnLog(sub, domain.LogEntry{Agent: domain.UnknownAgent, Message: "garbled"})

	st := sess.State()
	require.Len(t, st.Logs, 3)
	assert.Equal(t, "B", st.Logs[0].Agent)
	assert.Equal(t, "A", st.Logs[1].Agent)
	assert.Equal(t, domain.UnknownAgent, st.Logs[2].Agent)
}

func TestStaleSubscriptionEventsDiscarded(t *testing.T) {
	b := &fakeBackend{}
	sess, _ := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	stale := ports.Subject{URL: "https://old.example"}
	sess.OnLog(stale, domain.LogEntry{Agent: "A", Message: "from a dead view"})
	sess.OnSnapshot(stale, domain.Snapshot{Profile: domain.Profile{CompanyName: "Old"}})
	sess.OnFinal(stale, domain.Snapshot{Profile: domain.Profile{Status: domain.StatusGenerated}})

	st := sess.State()
	assert.Empty(t, st.Logs)
	assert.Nil(t, st.Profile)
	assert.False(t, st.Generated)
}

func TestNoEventsAfterTerminal(t *testing.T) {
	b := &fakeBackend{}
	sess, _ := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	sub := ports.Subject{URL: acmeURL}
	sess.OnLog(sub, domain.LogEntry{Agent: "A", Message: "during"})
	sess.OnFinal(sub, domain.Snapshot{Profile: domain.Profile{CompanyName: "Acme", Status: domain.StatusGenerated}})

	sess.OnLog(sub, domain.LogEntry{Agent: "A", Message: "after"})
	sess.OnSnapshot(sub, domain.Snapshot{Profile: domain.Profile{CompanyName: "Ghost"}})

	st := sess.State()
	require.Len(t, st.Logs, 1)
	assert.Equal(t, "during", st.Logs[0].Message)
	assert.Equal(t, "Acme", st.Profile.CompanyName)
}

func TestSnapshotReplacesStateWholesale(t *testing.T) {
	b := &fakeBackend{}
	sess, _ := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	sub := ports.Subject{URL: acmeURL}
	sess.OnSnapshot(sub, domain.Snapshot{
		Profile: domain.Profile{CompanyName: "Acme", Summary: "first pass"},
		Logs:    []domain.LogEntry{{Agent: "A", Message: "one"}},
	})
	sess.OnSnapshot(sub, domain.Snapshot{
		Profile: domain.Profile{CompanyName: "Acme"},
		Logs:    []domain.LogEntry{{Agent: "A", Message: "one"}, {Agent: "B", Message: "two"}},
	})

	st := sess.State()
	assert.Empty(t, st.Profile.Summary)
	require.Len(t, st.Logs, 2)
}

func TestDeleteWithoutProfileFailsFast(t *testing.T) {
	b := &fakeBackend{}
	sess, _ := newTestSession(b)
	defer sess.Close()

	assert.ErrorIs(t, sess.Delete(context.Background()), ErrNoActiveProfile)
	assert.Zero(t, b.deleteCalls)
}

func TestDeleteFailureLeavesStateIntact(t *testing.T) {
	b := &fakeBackend{deleteErr: errString("backend says no")}
	sess, _ := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	err := sess.Delete(context.Background())
	require.Error(t, err)

	st := sess.State()
	assert.True(t, st.Started)
	assert.Equal(t, acmeURL, st.URL)
}

func TestDeleteSuccessResetsLifecycle(t *testing.T) {
	var navigations []string
	b := &fakeBackend{}
	sess, _ := newTestSession(b, WithNavigator(func(url string) {
		navigations = append(navigations, url)
	}))
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	sub := ports.Subject{URL: acmeURL}
	sess.OnFinal(sub, domain.Snapshot{Profile: domain.Profile{Status: domain.StatusGenerated}})

	require.NoError(t, sess.Delete(context.Background()))
	st := sess.State()
	assert.False(t, st.Started)
	assert.False(t, st.Generated)
	assert.Nil(t, st.Profile)
	assert.Empty(t, st.URL)
	// Start navigated to the company URL; delete navigated away.
	require.NotEmpty(t, navigations)
	assert.Equal(t, "", navigations[len(navigations)-1])
}

func TestLoadResumesNonTerminalRun(t *testing.T) {
	b := &fakeBackend{
		company: domain.CompanyDetails{
			ID:       7,
			Name:     "Acme",
			Website:  acmeURL,
			DDStatus: "running",
		},
		companyDoc: map[string]any{"id": float64(7), "name": "Acme"},
	}
	sess, subjects := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Load(context.Background(), 7))
	st := sess.State()
	assert.True(t, st.Started)
	assert.False(t, st.Generated)
	require.Len(t, *subjects, 1)
	assert.Equal(t, acmeURL, (*subjects)[0].URL)
}

func TestLoadTerminalStatusDoesNotWatch(t *testing.T) {
	b := &fakeBackend{
		company: domain.CompanyDetails{ID: 7, Website: acmeURL, DDStatus: "finished"},
	}
	sess, subjects := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Load(context.Background(), 7))
	st := sess.State()
	assert.True(t, st.Started)
	assert.True(t, st.Generated)
	assert.Empty(t, *subjects)
}

func TestResumeHydratesSavedProfile(t *testing.T) {
	b := &fakeBackend{
		profileSnap: domain.Snapshot{
			Profile: domain.Profile{CompanyName: "Acme", Status: domain.StatusApproved},
			Doc:     map[string]any{"company_name": "Acme"},
		},
	}
	sess, _ := newTestSession(b)
	defer sess.Close()

	require.NoError(t, sess.Resume(context.Background(), acmeURL))
	st := sess.State()
	assert.True(t, st.Started)
	assert.True(t, st.Generated)
	assert.Equal(t, "Acme", st.Profile.CompanyName)
}

func TestListenerSeesEveryChange(t *testing.T) {
	var mu sync.Mutex
	var states []State
	b := &fakeBackend{}
	sess, _ := newTestSession(b, WithListener(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	}))
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background(), acmeURL))
	sub := ports.Subject{URL: acmeURL}
	sess.OnLog(sub, domain.LogEntry{Agent: "A", Message: "line"})
	sess.OnFinal(sub, domain.Snapshot{Profile: domain.Profile{Status: domain.StatusGenerated}})

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(states), 3)
	last := states[len(states)-1]
	assert.True(t, last.Generated)
}
