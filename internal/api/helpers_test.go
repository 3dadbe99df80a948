package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/nb-picture/backend/internal/dom"
	"github.com/nb-picture/backend/internal/journal"
	"github.com/nb-picture/backend/internal/parser"
	"github.com/nb-picture/backend/internal/picture"
	"github.com/nb-picture/backend/internal/session"
	"github.com/nb-picture/backend/internal/testutil"
)

type fakeStats struct {
	stats map[string][]journal.AreaStat
	count int
}

func (f *fakeStats) AreaStats(_ context.Context, pictureID string) ([]journal.AreaStat, error) {
	stats := f.stats[pictureID]
	if stats == nil {
		stats = []journal.AreaStat{}
	}
	return stats, nil
}

func (f *fakeStats) Count(context.Context) (int, error) {
	return f.count, nil
}

type testEnv struct {
	e        *echo.Echo
	sessions *session.Manager
	sched    *dom.ManualScheduler
	store    *testutil.MockStore
	catalog  *parser.Catalog
	hub      *Hub
	defsDir  string
}

func floorDefinition() *parser.Definition {
	return &parser.Definition{
		Name:          "floor",
		DefaultSource: "plan.png",
		Sources:       []any{},
		Map: map[string]any{
			"name":      "floor",
			"resize":    true,
			"relCoords": true,
			"areas": []any{
				map[string]any{"shape": "rect", "coords": []any{0, 0, 0.5, 0.5}, "title": "Kitchen"},
				map[string]any{"shape": "rect", "coords": []any{0.5, 0.5, 1, 1}, "title": "Hall"},
			},
			"overlays": map[string]any{
				"canvas":  map[string]any{"click": true, "single": true},
				"markers": map[string]any{"alwaysOn": true},
			},
		},
	}
}

func newTestEnv(t *testing.T, stats StatsSource) *testEnv {
	t.Helper()

	store := testutil.NewMockStore()
	store.AddImage("plan.png", 200, 100)
	sched := dom.NewManualScheduler()
	hub := NewHub()
	sessions := session.NewManager(picture.NewRegistry(picture.NewCounterGenerator()), sched, session.Options{},
		session.WithOpener(store),
		session.WithRemote(hub),
		session.WithReleaseHook(hub.Forget),
	)
	t.Cleanup(sessions.Close)

	catalog := parser.NewCatalog()
	require.NoError(t, catalog.Put(floorDefinition()))

	env := &testEnv{
		e:        echo.New(),
		sessions: sessions,
		sched:    sched,
		store:    store,
		catalog:  catalog,
		hub:      hub,
		defsDir:  t.TempDir(),
	}
	SetupMiddleware(env.e)
	RegisterRoutes(env.e, NewHandlers(&Dependencies{
		Store:          store,
		Sessions:       sessions,
		Catalog:        catalog,
		Hub:            hub,
		Stats:          stats,
		DefinitionsDir: env.defsDir,
		Version:        "test",
	}))
	return env
}

// do sends a request through the router. Non-nil bodies other than []byte
// are sent as JSON.
func (env *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	contentType := echo.MIMEApplicationJSON
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "application/yaml"
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

// createWidget creates a widget from the floor definition and lets it load
func (env *testEnv) createWidget(t *testing.T, mode string) session.Snapshot {
	t.Helper()
	rec := env.do(http.MethodPost, "/api/widgets", map[string]string{"definition": "floor", "mode": mode})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env.sched.Flush()

	var s session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return s
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeJSON[APIError](t, rec).Code
}
