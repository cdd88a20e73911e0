package iss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

type fakeApi struct {
	peopleCalls int
	peopleErrs  int
	people      People
	position    Position
	positionErr error
	tleCalls    int
	tle         TLE
	tleErr      error
}

func (f *fakeApi) PeopleInSpace(ctx context.Context) (People, error) {
	f.peopleCalls++
	if f.peopleCalls <= f.peopleErrs {
		return People{}, errors.New("timeout")
	}
	return f.people, nil
}

func (f *fakeApi) Position(ctx context.Context) (Position, error) {
	return f.position, f.positionErr
}

func (f *fakeApi) FetchTLE(ctx context.Context) (TLE, error) {
	f.tleCalls++
	return f.tle, f.tleErr
}

func recordSleeps(t *testing.T) *[]time.Duration {
	sleeps := []time.Duration{}
	previous := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	t.Cleanup(func() { sleep = previous })
	return &sleeps
}

func fixNow(t *testing.T, at time.Time) {
	previous := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = previous })
}

func TestParseTLE(t *testing.T) {
	tle, err := ParseTLE("ISS (ZARYA)\n" + issLine1 + "\r\n" + issLine2 + "\n")
	require.NoError(t, err)
	assert.Equal(t, "ISS (ZARYA)", tle.Name)

	elements, err := tle.Elements()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2008, 9, 20, 12, 25, 40, 104000000, time.UTC), elements.Epoch)
	assert.InDelta(t, 51.6416, elements.Inclination, 1e-9)
	assert.InDelta(t, 15.72125391, elements.MeanMotion, 1e-9)
	assert.InDelta(t, 91.5957, elements.Period, 1e-3)

	tle, err = ParseTLE(issLine1 + "\n" + issLine2)
	require.NoError(t, err)
	assert.Empty(t, tle.Name)

	_, err = ParseTLE("garbage")
	assert.Error(t, err)
}

func TestPeopleRetriesWithBackoff(t *testing.T) {
	sleeps := recordSleeps(t)
	client := &fakeApi{peopleErrs: 3}
	coordinator := newPeopleCoordinator(client, time.Hour)

	err := coordinator.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUpdateFailed)
	assert.Equal(t, 3, client.peopleCalls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
	assert.False(t, coordinator.LastUpdateSuccess())
}

func TestPeopleRecoversWithinRetries(t *testing.T) {
	sleeps := recordSleeps(t)
	client := &fakeApi{peopleErrs: 1, people: People{Number: 2, People: []Astronaut{
		{Name: "A", Craft: "ISS"},
		{Name: "B", Craft: "Tiangong"},
	}}}
	coordinator := newPeopleCoordinator(client, time.Hour)

	require.NoError(t, coordinator.Refresh(context.Background()))
	assert.Equal(t, []time.Duration{time.Second}, *sleeps)
	assert.Equal(t, []string{"A"}, coordinator.Data().OnIss())
}

func TestTleFetchWritesCache(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fixNow(t, at)
	client := &fakeApi{tle: TLE{Name: "ISS", Line1: issLine1, Line2: issLine2}}
	source := &tleSource{client: client, path: cachePath(t.TempDir(), "entry1"), interval: tleInterval}

	cached, err := source.fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, at, cached.FetchedAt)
	assert.Equal(t, issLine1, cached.Line1)

	content, err := os.ReadFile(source.path)
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"fetched_at":"2024-05-01T10:00:00Z","name":"ISS","line1":%q,"line2":%q}`, issLine1, issLine2), string(content))
	assert.Equal(t, "iss_tle_entry1.json", filepath.Base(source.path))
}

func TestTleFreshCacheSkipsFetch(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fixNow(t, at)
	path := cachePath(t.TempDir(), "entry1")
	writeCache(t, path, CachedTLE{FetchedAt: at.Add(-time.Hour), TLE: TLE{Name: "cached", Line1: issLine1, Line2: issLine2}})
	client := &fakeApi{}
	source := &tleSource{client: client, path: path, interval: tleInterval}

	cached, err := source.fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", cached.Name)
	assert.Equal(t, 0, client.tleCalls)
}

func TestTleFetchFailureFallsBackToCache(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fixNow(t, at)
	path := cachePath(t.TempDir(), "entry1")
	stale := CachedTLE{FetchedAt: at.Add(-48 * time.Hour), TLE: TLE{Name: "cached", Line1: issLine1, Line2: issLine2}}
	writeCache(t, path, stale)
	client := &fakeApi{tleErr: errors.New("unreachable")}
	coordinator := newTleCoordinator(&tleSource{client: client, path: path, interval: tleInterval})

	require.NoError(t, coordinator.Refresh(context.Background()))
	assert.Equal(t, 1, client.tleCalls)
	assert.True(t, stale.FetchedAt.Equal(coordinator.Data().FetchedAt))
	assert.Equal(t, stale.TLE, coordinator.Data().TLE)
}

func TestTleFetchFailureWithoutCache(t *testing.T) {
	client := &fakeApi{tleErr: errors.New("unreachable")}
	coordinator := newTleCoordinator(&tleSource{client: client, path: cachePath(t.TempDir(), "entry1"), interval: tleInterval})

	err := coordinator.Refresh(context.Background())
	assert.ErrorIs(t, err, core.ErrUpdateFailed)
	assert.False(t, coordinator.LastUpdateSuccess())
}

func TestTleInvalidCacheIsRefetched(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fixNow(t, at)
	path := cachePath(t.TempDir(), "entry1")
	writeCache(t, path, CachedTLE{FetchedAt: at.Add(-time.Hour), TLE: TLE{Line1: "1 x", Line2: "2 y"}})
	client := &fakeApi{tle: TLE{Name: "ISS", Line1: issLine1, Line2: issLine2}}
	coordinator := newTleCoordinator(&tleSource{client: client, path: path, interval: tleInterval})

	require.NoError(t, coordinator.Refresh(context.Background()))
	assert.Equal(t, 1, client.tleCalls)
	assert.Equal(t, issLine1, coordinator.Data().Line1)
}

func TestTleInvalidCacheWithoutNetwork(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fixNow(t, at)
	path := cachePath(t.TempDir(), "entry1")
	writeCache(t, path, CachedTLE{FetchedAt: at.Add(-time.Hour), TLE: TLE{Line1: "1 x", Line2: "2 y"}})
	client := &fakeApi{tleErr: errors.New("unreachable")}
	coordinator := newTleCoordinator(&tleSource{client: client, path: path, interval: tleInterval})

	assert.ErrorIs(t, coordinator.Refresh(context.Background()), core.ErrUpdateFailed)
	entity := &TleEntity{core.NewCoordinatorEntity(coordinator, core.EntityDescription{UniqueId: "tle"})}
	assert.NotPanics(t, func() {
		assert.Empty(t, entity.State().State)
	})
}

func TestElementsRejectsShortLines(t *testing.T) {
	_, err := TLE{Line1: "1 x", Line2: "2 y"}.Elements()
	assert.Error(t, err)
}

func writeCache(t *testing.T, path string, cached CachedTLE) {
	content, err := json.Marshal(cached)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, content, 0o600))
}

func TestClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/astros.json":
			fmt.Fprint(w, `{"message":"success","number":2,"people":[{"name":"A","craft":"ISS"},{"name":"B","craft":"Tiangong"}]}`)
		case "/iss-now.json":
			fmt.Fprint(w, `{"message":"success","timestamp":1700000000,"iss_position":{"latitude":"12.3456","longitude":"-45.6789"}}`)
		case "/tle":
			fmt.Fprint(w, "ISS (ZARYA)\n"+issLine1+"\n"+issLine2+"\n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.Client())
	client.openNotifyUrl = server.URL
	client.tleUrl = server.URL + "/tle"
	ctx := context.Background()

	people, err := client.PeopleInSpace(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, people.Number)
	assert.Equal(t, []string{"A"}, people.OnIss())

	position, err := client.Position(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 12.3456, position.Latitude, 1e-9)
	assert.InDelta(t, -45.6789, position.Longitude, 1e-9)
	assert.Equal(t, int64(1700000000), position.Timestamp.Unix())

	tle, err := client.FetchTLE(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ISS (ZARYA)", tle.Name)

	client.openNotifyUrl = server.URL + "/missing"
	_, err = client.Position(ctx)
	assert.Error(t, err)
}

func TestSingleInstanceFlow(t *testing.T) {
	store := coretest.NewMemoryStore()
	flow := &configFlow{flowContext: coretest.FlowContext(Domain, core.SourceUser, store, &core.Hub{})}

	result, err := flow.Step(context.Background(), "user", map[string]interface{}{confShowOnMap: true})
	require.NoError(t, err)
	require.Equal(t, core.FlowResultCreateEntry, result.Type)
	assert.Equal(t, true, result.Data[confShowOnMap])

	require.NoError(t, store.Add(context.Background(), core.NewConfigEntry(Domain, "ISS", Domain, core.SourceUser, nil)))
	flow = &configFlow{flowContext: coretest.FlowContext(Domain, core.SourceUser, store, &core.Hub{})}
	result, err = flow.Step(context.Background(), "user", nil)
	require.NoError(t, err)
	assert.Equal(t, core.FlowResultAbort, result.Type)
	assert.Equal(t, "single_instance_allowed", result.Reason)
}

func TestOptionsFlow(t *testing.T) {
	entry := core.NewConfigEntry(Domain, "ISS", Domain, core.SourceUser, map[string]interface{}{})
	flow := &optionsFlow{entry: entry}

	result, err := flow.Step(context.Background(), "init", map[string]interface{}{confUpdateInterval: 5})
	require.NoError(t, err)
	assert.Equal(t, core.FlowResultForm, result.Type)
	assert.Equal(t, "invalid_value", result.Errors[confUpdateInterval])

	result, err = flow.Step(context.Background(), "init", map[string]interface{}{confUpdateInterval: "120", confShowOnMap: true})
	require.NoError(t, err)
	require.Equal(t, core.FlowResultCreateEntry, result.Type)
	assert.Equal(t, 120, result.Data[confUpdateInterval])
}

func TestSetupEntities(t *testing.T) {
	recordSleeps(t)
	client := &fakeApi{
		people:   People{Number: 1, People: []Astronaut{{Name: "A", Craft: "ISS"}}},
		position: Position{Latitude: 1.5, Longitude: 2.25, Timestamp: time.Unix(1700000000, 0).UTC()},
		tle:      TLE{Name: "ISS", Line1: issLine1, Line2: issLine2},
	}
	previous := newApi
	newApi = func(*core.Hub) api { return client }
	t.Cleanup(func() { newApi = previous })

	entry := core.NewConfigEntry(Domain, "ISS", Domain, core.SourceUser, map[string]interface{}{confShowOnMap: true})
	runtime, err := integration{}.Setup(context.Background(), &core.Hub{CacheDir: t.TempDir()}, entry)
	require.NoError(t, err)
	defer runtime.Unload(context.Background())

	entities := runtime.Entities()
	require.Len(t, entities, 3)
	assert.Equal(t, "1", entities[0].State().State)
	assert.Equal(t, []string{"A"}, entities[0].State().Attributes["people"])

	position := entities[1].State()
	assert.Equal(t, "1.5000, 2.2500", position.State)
	assert.Equal(t, 1.5, position.Attributes["latitude"])
	assert.True(t, entities[1].Available())

	tle := entities[2].State()
	assert.Equal(t, "2008-09-20T12:25:40Z", tle.State)
	assert.Equal(t, 51.6416, tle.Attributes["inclination"])
}

func TestSetupNotReady(t *testing.T) {
	client := &fakeApi{positionErr: errors.New("down")}
	previous := newApi
	newApi = func(*core.Hub) api { return client }
	t.Cleanup(func() { newApi = previous })

	entry := core.NewConfigEntry(Domain, "ISS", Domain, core.SourceUser, nil)
	_, err := integration{}.Setup(context.Background(), &core.Hub{CacheDir: t.TempDir()}, entry)
	assert.ErrorIs(t, err, core.ErrNotReady)
}
