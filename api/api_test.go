package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facet-org/facet/api"
	"github.com/facet-org/facet/pkg/coldata"
	"github.com/facet-org/facet/pkg/filter"
	"github.com/facet-org/facet/pkg/schema"
	"github.com/facet-org/facet/pkg/store"
)

func newTestServer(t *testing.T) *api.Server {
	t.Helper()
	columns := []schema.Column{
		{Key: "age", Name: "age", Type: schema.DType{Kind: schema.KindFloat}, Optional: true},
		{Key: "name", Name: "name", Type: schema.DType{Kind: schema.KindString}},
	}
	data := map[string]coldata.Data{
		"age":  coldata.NewFloatData([]float64{30, 10, 20, math.NaN()}),
		"name": coldata.NewStringData([]string{"cy", "ada", "bo", "dee"}, nil),
	}
	s, err := store.New(columns, data, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return api.NewServer(s, api.ServerOptions{Source: "test.parquet"})
}

func doRequest(t *testing.T, srv *api.Server, method, target string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.GetApp().Test(req, 5000)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, raw
}

func decodeJSON(t *testing.T, raw []byte, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestNewServer(t *testing.T) {
	srv := newTestServer(t)
	require.NotNil(t, srv)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestVersionEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var v struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Build   string `json:"build"`
		Time    string `json:"time"`
	}
	decodeJSON(t, body, &v)
	assert.Equal(t, "Facet API", v.Service)
	assert.NotEmpty(t, v.Version)
	assert.NotEmpty(t, v.Build)
	assert.NotEmpty(t, v.Time)
}

func TestDatasetEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/api/dataset", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ds struct {
		Source   string `json:"source"`
		Rows     int    `json:"rows"`
		Filtered int    `json:"filtered_rows"`
		Columns  []struct {
			Key  string `json:"key"`
			Kind string `json:"kind"`
			Lazy bool   `json:"lazy"`
		} `json:"columns"`
	}
	decodeJSON(t, body, &ds)
	assert.Equal(t, "test.parquet", ds.Source)
	assert.Equal(t, 4, ds.Rows)
	assert.Equal(t, 4, ds.Filtered)
	require.Len(t, ds.Columns, 2)
	assert.Equal(t, "age", ds.Columns[0].Key)
	assert.Equal(t, "float", ds.Columns[0].Kind)
}

func TestColumnEndpointNotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/api/columns/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var p struct {
		Type string `json:"type"`
	}
	decodeJSON(t, body, &p)
	assert.Equal(t, "not-found", p.Type)
}

type rowsResponse struct {
	View    string `json:"view"`
	Total   int    `json:"total"`
	Offset  int    `json:"offset"`
	Indices []int  `json:"indices"`
}

func TestRowsEndpointSortsAndPages(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/api/rows?sort=age:asc&limit=2", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rows rowsResponse
	decodeJSON(t, body, &rows)
	assert.Equal(t, "full", rows.View)
	assert.Equal(t, 4, rows.Total)
	assert.Equal(t, []int{1, 2}, rows.Indices)

	resp, body = doRequest(t, srv, http.MethodGet, "/api/rows?sort=age:asc&offset=2", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, body, &rows)
	assert.Equal(t, []int{0, 3}, rows.Indices)

	resp, _ = doRequest(t, srv, http.MethodGet, "/api/rows?view=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodGet, "/api/rows?sort=age:sideways", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCellEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/api/cell/name/1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var cell struct {
		Column string `json:"column"`
		Row    int    `json:"row"`
		Value  any    `json:"value"`
	}
	decodeJSON(t, body, &cell)
	assert.Equal(t, "ada", cell.Value)

	resp, body = doRequest(t, srv, http.MethodGet, "/api/cell/age/3", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, body, &cell)
	assert.Nil(t, cell.Value)

	resp, _ = doRequest(t, srv, http.MethodGet, "/api/cell/nope/0", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodGet, "/api/cell/age/99", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFilterLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodPost, "/api/filters", map[string]any{
		"kind": "predicate", "column": "age", "predicate": "greater", "reference": 15,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sp filter.Spec
	decodeJSON(t, body, &sp)
	require.NotEmpty(t, sp.ID)
	assert.True(t, sp.Enabled)

	resp, body = doRequest(t, srv, http.MethodGet, "/api/rows?view=filtered", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows rowsResponse
	decodeJSON(t, body, &rows)
	assert.Equal(t, []int{0, 2}, rows.Indices)

	resp, body = doRequest(t, srv, http.MethodPatch, "/api/filters/"+sp.ID, map[string]any{"inverted": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, body, &sp)
	assert.True(t, sp.Inverted)

	_, body = doRequest(t, srv, http.MethodGet, "/api/rows?view=filtered", nil)
	decodeJSON(t, body, &rows)
	assert.Equal(t, []int{1, 3}, rows.Indices)

	resp, _ = doRequest(t, srv, http.MethodDelete, "/api/filters/"+sp.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = doRequest(t, srv, http.MethodGet, "/api/filters", nil)
	var specs []filter.Spec
	decodeJSON(t, body, &specs)
	assert.Empty(t, specs)

	resp, _ = doRequest(t, srv, http.MethodDelete, "/api/filters/"+sp.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddFilterRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doRequest(t, srv, http.MethodPost, "/api/filters", map[string]any{
		"kind": "predicate", "column": "nope", "predicate": "greater", "reference": 1,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodPost, "/api/filters", map[string]any{
		"kind": "predicate", "column": "age", "predicate": "sideways", "reference": 1,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSelectionEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodPut, "/api/selection", map[string]any{"rows": []int{0, 2}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sel struct {
		Rows []int `json:"rows"`
	}
	decodeJSON(t, body, &sel)
	assert.Equal(t, []int{0, 2}, sel.Rows)

	resp, body = doRequest(t, srv, http.MethodPost, "/api/selection", map[string]any{"op": "toggle", "rows": []int{2, 3}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, body, &sel)
	assert.Equal(t, []int{0, 3}, sel.Rows)

	resp, body = doRequest(t, srv, http.MethodPost, "/api/selection", map[string]any{"op": "intersect", "rows": []int{3}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, body, &sel)
	assert.Equal(t, []int{3}, sel.Rows)

	resp, _ = doRequest(t, srv, http.MethodPut, "/api/selection", map[string]any{"rows": []int{99}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodPost, "/api/selection", map[string]any{"op": "bogus", "rows": []int{0}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFreezeSelection(t *testing.T) {
	srv := newTestServer(t)

	_, _ = doRequest(t, srv, http.MethodPut, "/api/selection", map[string]any{"rows": []int{0, 1}})

	resp, body := doRequest(t, srv, http.MethodPost, "/api/filters/freeze-selection", map[string]any{"name": "my-rows"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sp filter.Spec
	decodeJSON(t, body, &sp)
	assert.Equal(t, "set", sp.Kind)
	assert.Equal(t, "my-rows", sp.Name)
	assert.Equal(t, []int{0, 1}, sp.Rows)
}

func TestHighlightEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodPut, "/api/highlight", map[string]any{"rows": []int{1, 2}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hl struct {
		Rows []int `json:"rows"`
	}
	decodeJSON(t, body, &hl)
	assert.Equal(t, []int{1, 2}, hl.Rows)

	resp, _ = doRequest(t, srv, http.MethodPost, "/api/highlight/0?exclusive=true", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = doRequest(t, srv, http.MethodGet, "/api/highlight", nil)
	decodeJSON(t, body, &hl)
	assert.Equal(t, []int{0}, hl.Rows)

	resp, _ = doRequest(t, srv, http.MethodDelete, "/api/highlight", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = doRequest(t, srv, http.MethodGet, "/api/highlight", nil)
	decodeJSON(t, body, &hl)
	assert.Empty(t, hl.Rows)
}

func TestFocusEndpoints(t *testing.T) {
	srv := newTestServer(t)

	_, body := doRequest(t, srv, http.MethodGet, "/api/focus", nil)
	var focus struct {
		Row     int  `json:"row"`
		Focused bool `json:"focused"`
	}
	decodeJSON(t, body, &focus)
	assert.False(t, focus.Focused)

	resp, body := doRequest(t, srv, http.MethodPut, "/api/focus", map[string]any{"row": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, body, &focus)
	assert.True(t, focus.Focused)
	assert.Equal(t, 2, focus.Row)

	resp, _ = doRequest(t, srv, http.MethodPut, "/api/focus", map[string]any{"row": 99})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodDelete, "/api/focus", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = doRequest(t, srv, http.MethodGet, "/api/focus", nil)
	decodeJSON(t, body, &focus)
	assert.False(t, focus.Focused)
}

func TestExportEndpoint(t *testing.T) {
	srv := newTestServer(t)
	path := filepath.Join(t.TempDir(), "out.csv")

	resp, body := doRequest(t, srv, http.MethodPost, "/api/export", map[string]any{
		"path": path, "sort": "age:asc",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Path string `json:"path"`
		Type string `json:"type"`
		Rows int    `json:"rows"`
	}
	decodeJSON(t, body, &out)
	assert.Equal(t, "csv", out.Type)
	assert.Equal(t, 4, out.Rows)
	assert.FileExists(t, path)
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var st map[string]struct {
		Count     int     `json:"count"`
		NullCount int     `json:"null_count"`
		Min       float64 `json:"min"`
	}
	decodeJSON(t, body, &st)
	require.Contains(t, st, "age")
	assert.Equal(t, 3, st["age"].Count)
	assert.Equal(t, 1, st["age"].NullCount)
	assert.Equal(t, 10.0, st["age"].Min)
}

func TestComputeEndpointWithoutClient(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodPost, "/api/compute", map[string]any{"task": "umap", "column": "age"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var p struct {
		Type string `json:"type"`
	}
	decodeJSON(t, body, &p)
	assert.Equal(t, "unavailable", p.Type)
}

func TestRefreshWithoutSource(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doRequest(t, srv, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
