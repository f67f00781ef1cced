package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/audit"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/bounds"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/gateway"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/refine"
)

// #region fixtures

type fixedGateway struct{ err error }

func (g fixedGateway) Refine(context.Context, string) (gateway.Candidate, error) {
	if g.err != nil {
		return gateway.Candidate{}, g.err
	}
	return gateway.Candidate{
		Shape:      params.Vector{"w": 0.9},
		Limb:       params.Vector{"gate": 0.5},
		Confidence: 0.7,
	}, nil
}

func (fixedGateway) ModelName() string { return "fixed" }

type failingRefiner struct{}

func (failingRefiner) Refine(context.Context, refine.Request) (refine.Response, error) {
	return refine.Response{}, errors.New("db bounds corrupt")
}

func testHistory(t *testing.T) *audit.Log {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	l, err := audit.NewLog(db)
	require.NoError(t, err)
	return l
}

func testServer(t *testing.T, gw refine.Refiner, opts Options) (*httptest.Server, *audit.Log) {
	t.Helper()
	history := testHistory(t)
	provider := bounds.NewStatic(map[params.Gender]params.Bounds{
		params.GenderMale: {
			Version: "v1",
			K5:      params.BoundSet{Shape: params.Envelope{"w": {Min: -0.5, Max: 0.3}}},
			DB: params.BoundSet{
				Shape: params.Envelope{"w": {Min: -1, Max: 1}},
				Limb:  params.Envelope{"gate": {Min: 1, Max: 1}},
			},
		},
	})
	orch := refine.NewOrchestrator(provider, gw, refine.Options{Recorder: history})
	opts.History = history
	srv := httptest.NewServer(New(orch, opts).Handler())
	t.Cleanup(srv.Close)
	return srv, history
}

const validRequest = `{
	"scan_id": "scan-1",
	"user_id": "user-1",
	"gender": "male",
	"blend_shape": {"w": 0.1},
	"blend_limb": {"gate": 1},
	"classification": {"obesity_level": "normal", "muscularity_level": "average"}
}`

func postRefine(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/refine", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

// #endregion fixtures

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t, fixedGateway{}, Options{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefineAndReadBack(t *testing.T) {
	srv, _ := testServer(t, fixedGateway{}, Options{})

	resp, out := postRefine(t, srv, validRequest)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["ai_refine"])
	assert.Equal(t, 0.3, out["final_shape_params"].(map[string]any)["w"])
	assert.Equal(t, 1.0, out["final_limb_masses"].(map[string]any)["gate"])
	assert.Equal(t, []any{"w"}, out["envelope_violations"])
	id, _ := out["refinement_id"].(string)
	require.NotEmpty(t, id)

	got, err := http.Get(srv.URL + "/v1/refinements/" + id)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	var entry audit.Entry
	require.NoError(t, json.NewDecoder(got.Body).Decode(&entry))
	assert.Equal(t, "scan-1", entry.ScanID)
	assert.Equal(t, "fixed", entry.Model)

	list, err := http.Get(srv.URL + "/v1/refinements?limit=5")
	require.NoError(t, err)
	defer list.Body.Close()
	require.Equal(t, http.StatusOK, list.StatusCode)
	var page struct {
		Refinements []audit.Entry `json:"refinements"`
	}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&page))
	assert.Len(t, page.Refinements, 1)
}

func TestRefineFallbackIs200(t *testing.T) {
	srv, _ := testServer(t, fixedGateway{err: &gateway.GatewayError{Kind: gateway.KindCapacityExhausted}}, Options{})

	resp, out := postRefine(t, srv, validRequest)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, out["ai_refine"])
	assert.Equal(t, "capacity_exhausted", out["fallback_reason"])
	assert.Equal(t, 0.1, out["final_shape_params"].(map[string]any)["w"])
}

func TestRefineErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"bad json", `{"scan_id":`, http.StatusBadRequest},
		{"missing scan", strings.Replace(validRequest, `"scan-1"`, `""`, 1), http.StatusBadRequest},
		{"unknown gender", strings.Replace(validRequest, `"male"`, `"robot"`, 1), http.StatusBadRequest},
		{"no bounds", strings.Replace(validRequest, `"male"`, `"female"`, 1), http.StatusServiceUnavailable},
	}
	srv, _ := testServer(t, fixedGateway{}, Options{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, out := postRefine(t, srv, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestRefineBodyLimit(t *testing.T) {
	srv, _ := testServer(t, fixedGateway{}, Options{MaxBodyBytes: 64})
	body := bytes.Repeat([]byte(" "), 128)
	body = append(body, []byte(validRequest)...)

	resp, err := http.Post(srv.URL+"/v1/refine", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestRefineInternalError(t *testing.T) {
	srv := httptest.NewServer(New(failingRefiner{}, Options{}).Handler())
	defer srv.Close()

	resp, out := postRefine(t, srv, validRequest)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", out["error"])
}

func TestRefinementsRoutes(t *testing.T) {
	srv, _ := testServer(t, fixedGateway{}, Options{})

	resp, err := http.Get(srv.URL + "/v1/refinements/does-not-exist")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/refinements?limit=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefinementsDisabledWithoutHistory(t *testing.T) {
	srv := httptest.NewServer(New(failingRefiner{}, Options{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/refinements")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
