package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"thermochart/internal/pipeline"
	"thermochart/internal/reading"
)

type fakeStatus struct {
	rep pipeline.Report
	ok  bool
}

func (f fakeStatus) LastRun() (pipeline.Report, bool) { return f.rep, f.ok }

type fakeStore struct {
	items     []reading.Reading
	err       error
	latestErr error

	from, to time.Time
	limit    int
}

func (f *fakeStore) Readings(_ context.Context, from, to time.Time, limit int) ([]reading.Reading, error) {
	f.from, f.to, f.limit = from, to, limit
	return f.items, f.err
}

func (f *fakeStore) Latest(context.Context) (reading.Reading, bool, error) {
	if f.latestErr != nil {
		return reading.Reading{}, false, f.latestErr
	}
	if len(f.items) == 0 {
		return reading.Reading{}, false, nil
	}
	return f.items[len(f.items)-1], true, nil
}

func newTestServer(t *testing.T, chartPath string, status StatusSource, store ReadingStore) *httptest.Server {
	t.Helper()

	srv := NewServer(":0", NewMux(chartPath, status, store), nil)
	ts := httptest.NewServer(srv.Handler)

	t.Cleanup(ts.Close)
	return ts
}

func mustGetJSON[T any](t *testing.T, client *http.Client, url string, out *T) *http.Response {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	t.Run("before first run", func(t *testing.T) {
		ts := newTestServer(t, "", fakeStatus{}, nil)

		var body map[string]any
		resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)

		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusServiceUnavailable)
		}
		if body["status"] != "starting" {
			t.Fatalf("body.status=%v want=starting", body["status"])
		}
	})

	t.Run("after a run", func(t *testing.T) {
		rep := pipeline.Report{Copied: 2, Rows: 2, ChartPath: "exports/home_temp.html"}
		ts := newTestServer(t, "", fakeStatus{rep: rep, ok: true}, nil)

		var body struct {
			Status  string          `json:"status"`
			LastRun pipeline.Report `json:"last_run"`
		}
		resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
		}
		if body.Status != "ok" {
			t.Fatalf("body.status=%q want=ok", body.Status)
		}
		if body.LastRun.Rows != 2 || body.LastRun.Copied != 2 {
			t.Errorf("last_run=%+v want rows=2 copied=2", body.LastRun)
		}
	})
}

func TestHealthz_LatestReading(t *testing.T) {
	nine := time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC)
	ok := fakeStatus{rep: pipeline.Report{Rows: 1}, ok: true}

	t.Run("archive disabled omits the field", func(t *testing.T) {
		ts := newTestServer(t, "", ok, nil)

		var body map[string]any
		mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)
		if _, present := body["latest_reading"]; present {
			t.Errorf("latest_reading present without archive: %v", body["latest_reading"])
		}
	})

	t.Run("empty archive reports null", func(t *testing.T) {
		ts := newTestServer(t, "", ok, &fakeStore{})

		var body map[string]any
		mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)
		v, present := body["latest_reading"]
		if !present || v != nil {
			t.Errorf("latest_reading = %v (present=%v), want null", v, present)
		}
	})

	t.Run("newest archived reading", func(t *testing.T) {
		store := &fakeStore{items: []reading.Reading{
			{Time: nine, Desired: 21, Actual: 20, On: true},
			{Time: nine.Add(time.Hour), Desired: 22, Actual: 21, On: false},
		}}
		ts := newTestServer(t, "", ok, store)

		var body struct {
			Status        string           `json:"status"`
			LatestReading *reading.Reading `json:"latest_reading"`
		}
		resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
		}
		if body.LatestReading == nil || !body.LatestReading.Time.Equal(nine.Add(time.Hour)) || body.LatestReading.Desired != 22 {
			t.Errorf("latest_reading=%+v want the 10:00 reading", body.LatestReading)
		}
	})

	t.Run("archive error", func(t *testing.T) {
		ts := newTestServer(t, "", ok, &fakeStore{latestErr: errors.New("db locked")})

		var body map[string]any
		resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusInternalServerError)
		}
	})
}

func TestChart(t *testing.T) {
	chart := filepath.Join(t.TempDir(), "home_temp.html")

	t.Run("not rendered yet", func(t *testing.T) {
		ts := newTestServer(t, chart, fakeStatus{}, nil)

		var body map[string]any
		resp := mustGetJSON(t, ts.Client(), ts.URL+"/", &body)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("serves file", func(t *testing.T) {
		if err := os.WriteFile(chart, []byte("<html><body>chart</body></html>"), 0o644); err != nil {
			t.Fatal(err)
		}
		ts := newTestServer(t, chart, fakeStatus{}, nil)

		resp, err := ts.Client().Get(ts.URL + "/")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("Content-Type=%q want text/html", ct)
		}
		b, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(b), "chart") {
			t.Errorf("body=%q", b)
		}
	})

	t.Run("unknown path", func(t *testing.T) {
		ts := newTestServer(t, chart, fakeStatus{}, nil)

		resp, err := ts.Client().Get(ts.URL + "/nope")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusNotFound)
		}
	})
}

func TestReadings(t *testing.T) {
	nine := time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC)

	t.Run("archive disabled", func(t *testing.T) {
		ts := newTestServer(t, "", fakeStatus{}, nil)

		var body map[string]any
		resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/readings", &body)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("default query", func(t *testing.T) {
		store := &fakeStore{items: []reading.Reading{{Time: nine, Desired: 21, Actual: 20, On: true}}}
		ts := newTestServer(t, "", fakeStatus{}, store)

		var body struct {
			From  *time.Time        `json:"from"`
			Limit int               `json:"limit"`
			Items []reading.Reading `json:"items"`
		}
		resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/readings", &body)

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
		}
		if body.From != nil {
			t.Errorf("from=%v want null", body.From)
		}
		if body.Limit != 500 || store.limit != 500 {
			t.Errorf("limit body=%d store=%d want 500", body.Limit, store.limit)
		}
		if len(body.Items) != 1 || body.Items[0].Desired != 21 || !body.Items[0].On {
			t.Errorf("items=%+v", body.Items)
		}
	})

	t.Run("empty archive encodes an empty list", func(t *testing.T) {
		ts := newTestServer(t, "", fakeStatus{}, &fakeStore{})

		var body map[string]any
		mustGetJSON(t, ts.Client(), ts.URL+"/api/readings", &body)
		items, ok := body["items"].([]any)
		if !ok || len(items) != 0 {
			t.Errorf("items=%#v want []", body["items"])
		}
	})

	t.Run("range is passed through", func(t *testing.T) {
		store := &fakeStore{}
		ts := newTestServer(t, "", fakeStatus{}, store)

		var body map[string]any
		url := ts.URL + "/api/readings?from=2023-01-01T09:00:00Z&to=2023-01-01T10:00:00Z&limit=10"
		resp := mustGetJSON(t, ts.Client(), url, &body)

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
		}
		if !store.from.Equal(nine) || !store.to.Equal(nine.Add(time.Hour)) || store.limit != 10 {
			t.Errorf("store got from=%v to=%v limit=%d", store.from, store.to, store.limit)
		}
	})

	t.Run("store error", func(t *testing.T) {
		ts := newTestServer(t, "", fakeStatus{}, &fakeStore{err: errors.New("db locked")})

		var body map[string]any
		resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/readings", &body)
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusInternalServerError)
		}
	})

	tests := []struct {
		name  string
		query string
	}{
		{name: "bad from", query: "from=yesterday"},
		{name: "bad to", query: "to=2023-01-01"},
		{name: "from after to", query: "from=2023-01-02T00:00:00Z&to=2023-01-01T00:00:00Z"},
		{name: "limit not a number", query: "limit=lots"},
		{name: "limit zero", query: "limit=0"},
		{name: "limit too large", query: "limit=5001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, "", fakeStatus{}, &fakeStore{})

			var body map[string]any
			resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/readings?"+tt.query, &body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusBadRequest)
			}
			if body["error"] != http.StatusText(http.StatusBadRequest) {
				t.Errorf("error=%v", body["error"])
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, "", fakeStatus{}, nil)

	resp, err := ts.Client().Post(ts.URL+"/healthz", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}
