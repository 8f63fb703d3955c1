package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/regdetect/formdetect/detection"
	"github.com/hazyhaar/regdetect/lifecycle"
)

type fakeController struct {
	mu        sync.Mutex
	result    *detection.Result
	triggered int
	confirmed []bool
	closed    bool
}

func (f *fakeController) Result() (*detection.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.result == nil {
		return nil, lifecycle.ErrNoResult
	}
	return f.result.Clone(), nil
}

func (f *fakeController) Status() lifecycle.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lifecycle.Status{State: lifecycle.Succeeded, MaxAttempts: 5, HasResult: f.result != nil}
}

func (f *fakeController) Trigger() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return lifecycle.ErrClosed
	}
	f.triggered++
	return nil
}

func (f *fakeController) Confirm(_ context.Context, confirmed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.result == nil {
		return lifecycle.ErrNoResult
	}
	f.confirmed = append(f.confirmed, confirmed)
	return nil
}

func (f *fakeController) set(res *detection.Result, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.closed = res, closed
}

func (f *fakeController) calls() (int, []bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggered, append([]bool(nil), f.confirmed...)
}

func server(t *testing.T, ctl Controller) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(NewCommands(ctl, "test", quiet()), quiet()))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(method, url, strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHTTP_Ping(t *testing.T) {
	srv := server(t, &fakeController{})
	resp, body := do(t, http.MethodGet, srv.URL+"/ping", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("ping: got %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID: missing")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers: missing")
	}
}

func TestHTTP_ResultNotFoundThenOK(t *testing.T) {
	ctl := &fakeController{}
	srv := server(t, ctl)

	resp, body := do(t, http.MethodGet, srv.URL+"/detection", "")
	if resp.StatusCode != http.StatusNotFound || body["error"] == nil {
		t.Errorf("no result: got %d %v", resp.StatusCode, body)
	}

	ctl.set(sample(), false)
	resp, body = do(t, http.MethodGet, srv.URL+"/detection", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result: got %d %v", resp.StatusCode, body)
	}
	if body["id"] != "det_1" || body["state"] != "DC" || body["is_business_registration_form"] != true {
		t.Errorf("result body: got %v", body)
	}
}

func TestHTTP_StatusAndTrigger(t *testing.T) {
	ctl := &fakeController{}
	srv := server(t, ctl)

	resp, body := do(t, http.MethodGet, srv.URL+"/detection/status", "")
	if resp.StatusCode != http.StatusOK || body["state"] != string(lifecycle.Succeeded) {
		t.Errorf("status: got %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/detection/trigger", "")
	if resp.StatusCode != http.StatusOK || body["triggered"] != true {
		t.Errorf("trigger: got %d %v", resp.StatusCode, body)
	}
	if n, _ := ctl.calls(); n != 1 {
		t.Errorf("triggered: got %d, want 1", n)
	}

	ctl.set(nil, true)
	resp, _ = do(t, http.MethodPost, srv.URL+"/detection/trigger", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("trigger after close: got %d, want 503", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/detection/trigger", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET trigger: got %d, want 405", resp.StatusCode)
	}
}

func TestHTTP_Confirm(t *testing.T) {
	ctl := &fakeController{result: sample()}
	srv := server(t, ctl)

	resp, body := do(t, http.MethodPost, srv.URL+"/detection/confirm", `{"confirmed": false}`)
	if resp.StatusCode != http.StatusOK || body["confirmed"] != false || body["url_pattern"] != "mytax.dc.gov/form/fr-500" {
		t.Errorf("confirm false: got %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/detection/confirm", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("confirm empty body: got %d", resp.StatusCode)
	}
	if _, got := ctl.calls(); len(got) != 2 || got[0] || !got[1] {
		t.Errorf("confirmed: got %v, want [false true]", got)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/detection/confirm", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body: got %d, want 400", resp.StatusCode)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{lifecycle.ErrNoResult, http.StatusNotFound},
		{lifecycle.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v): got %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRequestID_KeepsInbound(t *testing.T) {
	h := RequestID(quiet())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID: got %q, want abc123", got)
	}
}
