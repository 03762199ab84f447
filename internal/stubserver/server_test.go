package stubserver_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duedil/internal/adapters/rest"
	"duedil/internal/adapters/ws"
	"duedil/internal/domain"
	"duedil/internal/ports"
	"duedil/internal/services/session"
	"duedil/internal/stubserver"
	"duedil/internal/workers/poller"
)

const site = "https://acme.example"

func startStub(t *testing.T) (*stubserver.Server, *httptest.Server, *rest.Client) {
	t.Helper()
	stub := stubserver.New(stubserver.WithStepDelay(10 * time.Millisecond))
	srv := httptest.NewServer(stub.Router())
	t.Cleanup(srv.Close)
	return stub, srv, rest.New(srv.URL + "/api")
}

func pollFactory(client *rest.Client) ports.ChannelFactory {
	return func(sub ports.Subject) ports.Channel {
		return poller.New(client, sub, poller.WithInterval(20*time.Millisecond))
	}
}

func TestGenerationRunOverPolling(t *testing.T) {
	stub, _, client := startStub(t)
	id := stub.SeedCompany("Acme", site)

	sess := session.New(client, client, pollFactory(client), session.WithSettleDelay(5*time.Millisecond))
	defer sess.Close()

	ctx := context.Background()
	require.NoError(t, sess.Load(ctx, id))
	require.NoError(t, sess.Start(ctx, site))

	require.Eventually(t, func() bool {
		return sess.State().Generated
	}, 5*time.Second, 10*time.Millisecond)

	st := sess.State()
	require.NotNil(t, st.Profile)
	assert.True(t, st.Profile.Status.Terminal())
	assert.Equal(t, 3, st.Profile.RiskLevel)

	require.Len(t, st.Logs, 4)
	assert.Contains(t, st.Logs[0].Agent, "Researcher")
	assert.Contains(t, st.Logs[1].Agent, "Risk Analyst")
	assert.Contains(t, st.Logs[3].Agent, "Product Manager")

	details, _, err := client.CompanyByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusGenerated, domain.CanonicalStatus(details.DDStatus))
}

func TestGenerationRunOverSocket(t *testing.T) {
	stub, srv, client := startStub(t)
	id := stub.SeedCompany("Acme", site)
	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http")

	factory := func(sub ports.Subject) ports.Channel {
		return ws.NewProfileStream(wsBase, sub)
	}
	sess := session.New(client, client, factory, session.WithSettleDelay(5*time.Millisecond))
	defer sess.Close()

	ctx := context.Background()
	require.NoError(t, sess.Load(ctx, id))
	require.NoError(t, sess.Start(ctx, site))

	require.Eventually(t, func() bool {
		return sess.State().Generated
	}, 5*time.Second, 10*time.Millisecond)

	st := sess.State()
	require.NotNil(t, st.Profile)
	assert.True(t, st.Profile.Status.Terminal())
	assert.Len(t, st.Logs, 4)
}

func TestGenerationRunOverSocketWithoutLoad(t *testing.T) {
	stub, srv, client := startStub(t)
	stub.SeedCompany("Acme", site)
	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http")

	factory := func(sub ports.Subject) ports.Channel {
		return ws.NewProfileStream(wsBase, sub)
	}
	sess := session.New(client, client, factory, session.WithSettleDelay(5*time.Millisecond))
	defer sess.Close()

	// No Load: the session resolves the company id itself so the socket
	// dials the real stream, not /ws/profile/0.
	require.NoError(t, sess.Start(context.Background(), site))

	require.Eventually(t, func() bool {
		return sess.State().Generated
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, sess.State().Logs, 4)
}

func TestCompanyReadsDuringGeneration(t *testing.T) {
	stub, _, client := startStub(t)
	id := stub.SeedCompany("Acme", site)
	ctx := context.Background()

	_, err := client.StartProfile(ctx, site)
	require.NoError(t, err)

	// Hammer the read endpoints while the generation goroutine mutates
	// the company document; the race detector flags unsynchronized access.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if _, _, err := client.CompanyByID(ctx, id); err != nil {
				return
			}
			if _, err := client.Companies(ctx, "", 0); err != nil {
				return
			}
		}
	}()
	<-done

	require.Eventually(t, func() bool {
		details, _, err := client.CompanyByID(ctx, id)
		return err == nil && domain.CanonicalStatus(details.DDStatus).Terminal()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAddCompanyUpsertsByWebsite(t *testing.T) {
	stub, _, client := startStub(t)
	seeded := stub.SeedCompany("Acme", site)
	ctx := context.Background()

	existing, err := client.AddCompany(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, seeded, existing.ID)

	again, err := client.AddCompany(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, seeded, again.ID)
}

func TestStartIsIdempotentOnTheBackend(t *testing.T) {
	stub, _, client := startStub(t)
	stub.SeedCompany("Acme", site)
	ctx := context.Background()

	first, err := client.StartProfile(ctx, site)
	require.NoError(t, err)
	assert.Contains(t, first.Msg, "started")

	second, err := client.StartProfile(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, "already running", second.Msg)
}

func TestEditAfterGeneration(t *testing.T) {
	stub, _, client := startStub(t)
	id := stub.SeedCompany("Acme", site)

	sess := session.New(client, client, pollFactory(client), session.WithSettleDelay(5*time.Millisecond))
	defer sess.Close()

	ctx := context.Background()
	require.NoError(t, sess.Load(ctx, id))
	require.NoError(t, sess.Start(ctx, site))
	require.Eventually(t, func() bool {
		return sess.State().Generated
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, sess.UpdateProfileKey(ctx, "founder", "Jane Doe"))
	assert.Equal(t, "Jane Doe", sess.State().Profile.Founder)

	// The backend holds the merged document, not a patch.
	snap, err := client.Profile(ctx, site, true, true)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", snap.Profile.Founder)
	assert.Equal(t, 3, snap.Profile.RiskLevel)
}

func TestDeleteProfileResetsCompanyStatus(t *testing.T) {
	stub, _, client := startStub(t)
	id := stub.SeedCompany("Acme", site)

	sess := session.New(client, client, pollFactory(client), session.WithSettleDelay(5*time.Millisecond))
	defer sess.Close()

	ctx := context.Background()
	require.NoError(t, sess.Load(ctx, id))
	require.NoError(t, sess.Start(ctx, site))
	require.Eventually(t, func() bool {
		return sess.State().Generated
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, sess.Delete(ctx))
	assert.False(t, sess.State().Started)

	_, err := client.Profile(ctx, site, true, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	details, _, err := client.CompanyByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotAvailable, domain.CanonicalStatus(details.DDStatus))
}

func TestCompanyCRUD(t *testing.T) {
	stub, _, client := startStub(t)
	stub.SeedCompany("Acme", site)
	ctx := context.Background()

	added, err := client.AddCompany(ctx, "https://www.orbit.example")
	require.NoError(t, err)
	assert.Equal(t, "orbit.example", added.Name)

	page, err := client.Companies(ctx, "orbit", 0)
	require.NoError(t, err)
	require.Len(t, page.Companies, 1)
	assert.Equal(t, added.ID, page.Companies[0].ID)

	_, doc, err := client.CompanyByID(ctx, added.ID)
	require.NoError(t, err)
	doc["industry"] = "Aerospace"
	require.NoError(t, client.UpdateCompany(ctx, added.ID, doc))

	details, _, err := client.CompanyByID(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "Aerospace", details.Industry)

	require.NoError(t, client.DeleteCompany(ctx, added.ID))
	_, _, err = client.CompanyByID(ctx, added.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
