package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atinyakov/CoOrganizer/internal/intercept"
	"github.com/atinyakov/CoOrganizer/internal/models"
	handler "github.com/atinyakov/CoOrganizer/internal/server/handler/http"
	"github.com/atinyakov/CoOrganizer/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSharer struct {
	txs   []models.Transaction
	group *models.Group
	res   service.ShareResult
	err   error
}

func (f *fakeSharer) Share(_ context.Context, txs []models.Transaction, group *models.Group) (service.ShareResult, error) {
	f.txs, f.group = txs, group
	return f.res, f.err
}

type fakeOrganizer struct {
	limit int
	items []models.OrganizerItem
	err   error
}

func (f *fakeOrganizer) List(_ context.Context, limit int) ([]models.OrganizerItem, error) {
	f.limit = limit
	return f.items, f.err
}

type fixedStats intercept.Stats

func (s fixedStats) Stats() intercept.Stats { return intercept.Stats(s) }

type router struct {
	groups    *fakeGroups
	sharer    *fakeSharer
	organizer *fakeOrganizer
	proxied   []string
	srv       *httptest.Server
}

func newRouter(t *testing.T) *router {
	t.Helper()
	rt := &router{
		groups:    &fakeGroups{groups: []models.Group{{Name: "crew", Fingerprint: "AAAA-BBBB-CCCC-DDDD"}}},
		sharer:    &fakeSharer{res: service.ShareResult{URL: "http://store/1", Count: 1, Copied: true}},
		organizer: &fakeOrganizer{},
	}
	proxy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt.proxied = append(rt.proxied, r.URL.Path)
		_, _ = io.WriteString(w, "from store")
	})
	h := handler.NewRouter(handler.Handlers{
		Groups:    &handler.GroupHandler{Groups: rt.groups},
		Share:     &handler.ShareHandler{Sharer: rt.sharer, Groups: rt.groups},
		Organizer: &handler.OrganizerHandler{Organizer: rt.organizer, Stats: fixedStats{Matched: 2, Imported: 1}},
		Proxy:     proxy,
	}, zap.NewNop())
	rt.srv = httptest.NewServer(h)
	t.Cleanup(rt.srv.Close)
	return rt
}

func (rt *router) do(t *testing.T, method, path, contentType, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, rt.srv.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := rt.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestRouter_Livez(t *testing.T) {
	rt := newRouter(t)
	resp, body := rt.do(t, http.MethodGet, "/livez", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"alive"}`, body)
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestRouter_GroupRoutes(t *testing.T) {
	rt := newRouter(t)

	resp, _ := rt.do(t, http.MethodGet, "/api/groups", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = rt.do(t, http.MethodPost, "/api/groups", "application/json", `{"name":"blue"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "blue", rt.groups.createdName)

	resp, _ = rt.do(t, http.MethodPost, "/api/groups", "text/plain", `{"name":"blue"}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp, body := rt.do(t, http.MethodGet, "/api/groups/AAAA-BBBB-CCCC-DDDD/invite", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "CODE-crew")

	resp, _ = rt.do(t, http.MethodDelete, "/api/groups/AAAA-BBBB-CCCC-DDDD", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.Fingerprint("AAAA-BBBB-CCCC-DDDD"), rt.groups.left)

	resp, _ = rt.do(t, http.MethodPost, "/api/groups/move", "application/json", `{"from":0,"to":0}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Empty(t, rt.proxied)
}

func TestRouter_Share(t *testing.T) {
	rt := newRouter(t)

	body := `{"group":"AAAA-BBBB-CCCC-DDDD","transactions":[{"request":{"method":"GET","url":"https://t.example/"}}]}`
	resp, out := rt.do(t, http.MethodPost, "/api/share", "application/json", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, rt.sharer.group)
	assert.Equal(t, "crew", rt.sharer.group.Name)
	require.Len(t, rt.sharer.txs, 1)
	assert.Equal(t, "https://t.example/", rt.sharer.txs[0].Request.URL)

	var res service.ShareResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "http://store/1", res.URL)

	resp, _ = rt.do(t, http.MethodPost, "/api/share", "application/json", `{"group":"0000-0000-0000-0000","transactions":[]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_ShareErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"nothing selected", service.ErrNothingToShare, http.StatusBadRequest},
		{"store down", &service.TransportError{Err: errors.New("refused")}, http.StatusBadGateway},
		{"store rejected", &service.StoreError{Message: "quota"}, http.StatusBadGateway},
		{"no link", service.ErrNoShareURL, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRouter(t)
			rt.sharer.err = tt.err
			resp, _ := rt.do(t, http.MethodPost, "/api/share", "application/json", `{"transactions":[]}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Nil(t, rt.sharer.group)
		})
	}
}

func TestRouter_Organizer(t *testing.T) {
	rt := newRouter(t)
	rt.organizer.items = []models.OrganizerItem{{
		ID:          "1",
		Transaction: models.Transaction{Request: models.Request{Method: "GET", URL: "https://t.example/"}},
		ImportedAt:  time.UnixMilli(1000).UTC(),
	}}

	resp, body := rt.do(t, http.MethodGet, "/api/organizer?limit=5", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, rt.organizer.limit)
	var items []models.OrganizerItem
	require.NoError(t, json.Unmarshal([]byte(body), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "https://t.example/", items[0].Transaction.Request.URL)

	resp, _ = rt.do(t, http.MethodGet, "/api/organizer?limit=x", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	rt.organizer.items = nil
	_, body = rt.do(t, http.MethodGet, "/api/organizer", "", "")
	assert.JSONEq(t, `[]`, body)

	rt.organizer.err = errors.New("db gone")
	resp, _ = rt.do(t, http.MethodGet, "/api/organizer", "", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	_, body = rt.do(t, http.MethodGet, "/api/organizer/stats", "", "")
	var st intercept.Stats
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, int64(2), st.Matched)
	assert.Equal(t, int64(1), st.Imported)
}

func TestRouter_FallsBackToProxy(t *testing.T) {
	rt := newRouter(t)
	resp, body := rt.do(t, http.MethodGet, "/abc/import", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "from store", body)

	_, _ = rt.do(t, http.MethodPost, "/share", "multipart/form-data", "")
	assert.Equal(t, []string{"/abc/import", "/share"}, rt.proxied)

	resp, _ = rt.do(t, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
