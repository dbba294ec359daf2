package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AnamariaDum/BikeRecorder/internal/app/api"
	"github.com/AnamariaDum/BikeRecorder/internal/app/state"
)

func newTestRegistrar(t *testing.T, handler http.HandlerFunc) (*Registrar, *state.Auth, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	auth := state.NewAuth(srv.URL)
	client := api.NewClient(auth)
	return NewRegistrar(client, DefaultInfo("sim")), auth, srv
}

func TestEnsureCacheHitMakesNoCall(t *testing.T) {
	var calls int32
	reg, auth, _ := newTestRegistrar(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(api.Device{ID: "d-new"})
	})

	auth.SetDeviceID("d1")
	for i := 0; i < 2; i++ {
		id, err := reg.Ensure(context.Background())
		if err != nil {
			t.Fatalf("ensure: %v", err)
		}
		if id != "d1" {
			t.Fatalf("expected cached id d1, got %q", id)
		}
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("cache hit must not register, got %d calls", calls)
	}
}

func TestEnsureRegistersOnceAndCaches(t *testing.T) {
	var calls int32
	reg, auth, _ := newTestRegistrar(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/devices/register" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req api.RegisterDeviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.AppVersion != AppVersion || req.Platform == "" || req.Model != "sim" {
			t.Fatalf("unexpected registration payload %+v", req)
		}
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(api.Device{ID: "d1"})
	})

	id, err := reg.Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if id != "d1" || auth.DeviceID() != "d1" {
		t.Fatalf("registration result not cached: id=%q state=%q", id, auth.DeviceID())
	}

	// second session start: zero additional registrations
	if _, err := reg.Ensure(context.Background()); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one registration call, got %d", calls)
	}
}

func TestEnsureSingleFlight(t *testing.T) {
	var calls int32
	reg, _, _ := newTestRegistrar(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode(api.Device{ID: "d1"})
	})

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := reg.Ensure(context.Background())
			if err != nil {
				t.Errorf("ensure: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("concurrent callers must share one flight, got %d calls", got)
	}
	for _, id := range ids {
		if id != "d1" {
			t.Fatalf("expected every caller to get d1, got %q", id)
		}
	}
}

func TestEnsureFailureAbortsWithTypedError(t *testing.T) {
	reg, auth, _ := newTestRegistrar(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "registry offline", http.StatusServiceUnavailable)
	})

	_, err := reg.Ensure(context.Background())
	if !errors.Is(err, ErrRegistration) {
		t.Fatalf("expected ErrRegistration, got %v", err)
	}
	if auth.DeviceID() != "" {
		t.Fatalf("failed registration must not cache an id")
	}
}
