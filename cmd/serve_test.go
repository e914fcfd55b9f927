//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantrysense/pantry-cli/internal/alert"
	"github.com/pantrysense/pantry-cli/internal/catalog"
	"github.com/pantrysense/pantry-cli/internal/expiry"
	"github.com/pantrysense/pantry-cli/internal/fusion"
	"github.com/pantrysense/pantry-cli/internal/inventory"
	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/normalize"
	"github.com/pantrysense/pantry-cli/internal/pipeline"
	"github.com/pantrysense/pantry-cli/internal/store"
)

func newTestEnv(t *testing.T) *pantryEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pantry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	cat := catalog.New()
	engine := alert.NewEngine(st, expiry.ThresholdTable{Base: expiry.DefaultThresholds()})
	p := pipeline.New(
		st,
		normalize.New(0),
		fusion.NewResolver(cat, nil),
		inventory.NewReconciler(st, inventory.DefaultRetention),
		engine,
		nil,
	)

	return &pantryEnv{Store: st, Catalog: cat, Engine: engine, Pipeline: p}
}

func postJSON(t *testing.T, r http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRouter_HealthEndpoint(t *testing.T) {
	r := newRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	err := json.Unmarshal(rr.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_ScanCreatesItem(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)

	rr := postJSON(t, r, "/api/scan", map[string]any{
		"source_id": "fridge-cam",
		"detections": []map[string]any{
			{"modality": "vision", "label": "Milk", "confidence": 0.94},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var report pipeline.ScanReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Updated)

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	list := httptest.NewRecorder()
	r.ServeHTTP(list, req)
	require.Equal(t, http.StatusOK, list.Code)

	var resp struct {
		Items []model.FoodItem `json:"items"`
		Count int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Milk", resp.Items[0].Name)
}

func TestRouter_ScanRejectsEmptyBatch(t *testing.T) {
	r := newRouter(newTestEnv(t))

	rr := postJSON(t, r, "/api/scan", map[string]any{"source_id": "fridge-cam"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_ScanRejectsInvalidBody(t *testing.T) {
	r := newRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodPost, "/api/scan", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_ConsumeAndStats(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)

	rr := postJSON(t, r, "/api/scan", map[string]any{
		"detections": []map[string]any{
			{"modality": "manual", "label": "Leftover curry", "category": "Leftovers"},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	items, err := env.Store.ListItems(context.Background(), store.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	consume := postJSON(t, r, "/api/items/"+items[0].ID+"/consume", nil)
	assert.Equal(t, http.StatusOK, consume.Code)

	// Second consume of the same item fails.
	again := postJSON(t, r, "/api/items/"+items[0].ID+"/consume", nil)
	assert.Equal(t, http.StatusNotFound, again.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/stats?days=7", nil)
	stats := httptest.NewRecorder()
	r.ServeHTTP(stats, req)
	require.Equal(t, http.StatusOK, stats.Code)

	var ws model.WasteStats
	require.NoError(t, json.Unmarshal(stats.Body.Bytes(), &ws))
	assert.Equal(t, 7, ws.LookbackDays)
	assert.Equal(t, 1, ws.TotalItems)
	assert.Equal(t, 0, ws.ExpiredItems)
}

func TestDrainOnCancel_CompletesInflightRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	})}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	ctx, cancel := context.WithCancel(context.Background())
	go drainOnCancel(ctx, srv, 5*time.Second)

	respCode := make(chan int, 1)
	reqErr := make(chan error, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			reqErr <- err
			return
		}
		resp.Body.Close()
		respCode <- resp.StatusCode
	}()

	// Cancel while the request is in flight, then let the handler finish.
	<-started
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case code := <-respCode:
		assert.Equal(t, http.StatusOK, code)
	case err := <-reqErr:
		t.Fatalf("in-flight request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request did not complete")
	}

	select {
	case err := <-serveErr:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRouter_AlertsAndAck(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)

	// A label date due tomorrow lands in critical and raises an alert.
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	rr := postJSON(t, r, "/api/scan", map[string]any{
		"detections": []map[string]any{
			{"modality": "ocr", "label": "Yogurt", "confidence": 0.9, "text": "use by " + tomorrow},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	list := httptest.NewRecorder()
	r.ServeHTTP(list, req)
	require.Equal(t, http.StatusOK, list.Code)

	var resp struct {
		Alerts []model.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Alerts)

	ack := postJSON(t, r, "/api/alerts/"+resp.Alerts[0].ID+"/ack", nil)
	assert.Equal(t, http.StatusOK, ack.Code)

	// Acknowledging twice conflicts.
	ackAgain := postJSON(t, r, "/api/alerts/"+resp.Alerts[0].ID+"/ack", nil)
	assert.Equal(t, http.StatusConflict, ackAgain.Code)
}
