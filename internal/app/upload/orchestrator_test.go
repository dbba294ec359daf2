package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AnamariaDum/BikeRecorder/internal/app/api"
	"github.com/AnamariaDum/BikeRecorder/internal/app/location"
	"github.com/AnamariaDum/BikeRecorder/internal/app/recorder"
	"github.com/AnamariaDum/BikeRecorder/internal/app/state"
)

// fakeBackend records the §4.4 handshake call by call.
type fakeBackend struct {
	mu            sync.Mutex
	calls         []string
	failOn        string
	uploadBody    string
	patchSegment  api.PatchSegmentRequest
	finalizeTrip  api.FinalizeTripRequest
	metadata      api.MetadataRequest
	createSegment api.CreateSegmentRequest
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) callList() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := route(r)
		b.record(call)
		if call == b.failOn {
			http.Error(w, "induced failure", http.StatusInternalServerError)
			return
		}
		switch call {
		case "create-trip":
			json.NewEncoder(w).Encode(api.Trip{ID: "trip-1", Status: "open"})
		case "create-segment":
			json.NewDecoder(r.Body).Decode(&b.createSegment)
			json.NewEncoder(w).Encode(api.Segment{ID: "seg-1", Status: "open"})
		case "upload-file":
			if err := r.ParseMultipartForm(8 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			body := b.uploadBody
			if body == "" {
				body = `{"status":"ok"}`
			}
			w.Write([]byte(body))
		case "patch-segment":
			json.NewDecoder(r.Body).Decode(&b.patchSegment)
			w.WriteHeader(http.StatusNoContent)
		case "post-metadata":
			json.NewDecoder(r.Body).Decode(&b.metadata)
			w.WriteHeader(http.StatusCreated)
		case "finalize-trip":
			json.NewDecoder(r.Body).Decode(&b.finalizeTrip)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
}

func route(r *http.Request) string {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/trips":
		return "create-trip"
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/segments"):
		return "create-segment"
	case r.Method == http.MethodPost && path == "/uploads/multipart":
		return "upload-file"
	case r.Method == http.MethodPatch && strings.Contains(path, "/segments/"):
		return "patch-segment"
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/metadata"):
		return "post-metadata"
	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/trips/"):
		return "finalize-trip"
	}
	return r.Method + " " + path
}

func testJob(t *testing.T, content []byte) Job {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ride.mp4")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	spd := 3.0
	return Job{
		Artifact:   recorder.Artifact{Path: path, Codec: "h264", Width: 1920, Height: 1080, FPS: 30},
		Samples:    []location.Sample{{Ts: started, Lat: 46.77, Lon: 23.59, Spd: &spd}},
		SamplingOK: true,
		DeviceID:   "d1",
		StartedAt:  started,
		StoppedAt:  started.Add(125 * time.Second),
	}
}

func newOrchestrator(t *testing.T, backend *fakeBackend, mode string) *Orchestrator {
	t.Helper()
	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)
	return New(api.NewClient(state.NewAuth(srv.URL)), mode)
}

func TestRunHappyPathOrdering(t *testing.T) {
	backend := &fakeBackend{uploadBody: `{"status":"ok","size":1048576,"sha":"abc123"}`}
	o := newOrchestrator(t, backend, ModeMultipart)

	result, err := o.Run(context.Background(), testJob(t, []byte("frames")))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.TripID != "trip-1" || result.SegmentID != "seg-1" {
		t.Fatalf("unexpected result %+v", result)
	}

	want := []string{"create-trip", "create-segment", "upload-file", "patch-segment", "post-metadata", "finalize-trip"}
	got := backend.callList()
	if len(got) != len(want) {
		t.Fatalf("calls %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %s, want %s", i, got[i], want[i])
		}
	}

	// server-reported size/sha win over the local stat
	if backend.patchSegment.FileSizeBytes != 1048576 {
		t.Fatalf("patch must carry server size, got %d", backend.patchSegment.FileSizeBytes)
	}
	if backend.patchSegment.Sha256 == nil || *backend.patchSegment.Sha256 != "abc123" {
		t.Fatalf("patch must carry server sha, got %+v", backend.patchSegment.Sha256)
	}
	if backend.patchSegment.Status != "complete" || backend.finalizeTrip.Status != "complete" {
		t.Fatalf("segment and trip must be marked complete")
	}

	// wall-clock duration on both the segment patch and the trip finalize
	if backend.patchSegment.DurationS != 125 || backend.finalizeTrip.DurationS != 125 {
		t.Fatalf("duration mismatch: patch=%d finalize=%d", backend.patchSegment.DurationS, backend.finalizeTrip.DurationS)
	}
	if backend.finalizeTrip.EndTimeUTC != "2024-05-01T10:02:05Z" {
		t.Fatalf("unexpected end time %q", backend.finalizeTrip.EndTimeUTC)
	}

	if backend.metadata.Type != "gps_jsonl" || !strings.Contains(backend.metadata.Content, `"lat":46.77`) {
		t.Fatalf("unexpected metadata %+v", backend.metadata)
	}
	if backend.createSegment.Index != 0 || backend.createSegment.ExpectedBytes != int64(len("frames")) {
		t.Fatalf("unexpected segment request %+v", backend.createSegment)
	}
}

func TestRunFallsBackToLocalSize(t *testing.T) {
	content := []byte("some local frames")
	backend := &fakeBackend{uploadBody: "not-json"}
	o := newOrchestrator(t, backend, ModeMultipart)

	if _, err := o.Run(context.Background(), testJob(t, content)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if backend.patchSegment.FileSizeBytes != int64(len(content)) {
		t.Fatalf("expected local size fallback, got %d", backend.patchSegment.FileSizeBytes)
	}
	if backend.patchSegment.Sha256 != nil {
		t.Fatalf("checksum must be null when the server did not report one")
	}
}

func TestRunUploadFailureShortCircuits(t *testing.T) {
	backend := &fakeBackend{failOn: "upload-file"}
	o := newOrchestrator(t, backend, ModeMultipart)

	_, err := o.Run(context.Background(), testJob(t, []byte("frames")))
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepUploadFile {
		t.Fatalf("expected upload-file step error, got %v", err)
	}

	for _, call := range backend.callList() {
		switch call {
		case "patch-segment", "post-metadata", "finalize-trip":
			t.Fatalf("call %s must not happen after upload failure", call)
		}
	}
}

func TestRunCreateTripFailureAbortsEverything(t *testing.T) {
	backend := &fakeBackend{failOn: "create-trip"}
	o := newOrchestrator(t, backend, ModeMultipart)

	_, err := o.Run(context.Background(), testJob(t, []byte("frames")))
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepCreateTrip {
		t.Fatalf("expected create-trip step error, got %v", err)
	}
	if got := backend.callList(); len(got) != 1 {
		t.Fatalf("expected a single call, got %v", got)
	}
}

func TestRunSamplingUnavailableSkipsMetadataOnly(t *testing.T) {
	backend := &fakeBackend{}
	o := newOrchestrator(t, backend, ModeMultipart)

	job := testJob(t, []byte("frames"))
	job.SamplingOK = false
	job.Samples = nil

	if _, err := o.Run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}

	finalized := false
	for _, call := range backend.callList() {
		if call == "post-metadata" {
			t.Fatalf("post-metadata must be skipped when sampling was unavailable")
		}
		if call == "finalize-trip" {
			finalized = true
		}
	}
	if !finalized {
		t.Fatalf("trip must still be finalized without GPS")
	}
}

func TestRunMissingArtifactFailsAtStat(t *testing.T) {
	backend := &fakeBackend{}
	o := newOrchestrator(t, backend, ModeMultipart)

	job := testJob(t, []byte("frames"))
	job.Artifact.Path = filepath.Join(t.TempDir(), "gone.mp4")

	_, err := o.Run(context.Background(), job)
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepStat {
		t.Fatalf("expected stat step error, got %v", err)
	}
	if len(backend.callList()) != 0 {
		t.Fatalf("no remote call may happen before stat succeeds")
	}
}

func TestRunResumableModeRecordsLocalChecksum(t *testing.T) {
	content := []byte("resumable frames")
	sum := sha256.Sum256(content)
	wantSha := hex.EncodeToString(sum[:])

	var patch api.PatchSegmentRequest
	offset := int64(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/trips":
			json.NewEncoder(w).Encode(api.Trip{ID: "trip-1"})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/segments"):
			json.NewEncoder(w).Encode(api.Segment{ID: "seg-1"})
		case r.Method == http.MethodPost && r.URL.Path == "/uploads":
			var req api.CreateUploadRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Sha256 != wantSha || req.UploadLength != int64(len(content)) {
				t.Errorf("unexpected upload session request %+v", req)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(api.UploadSession{ID: "up-1"})
		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/uploads/"):
			var n int64
			buf := make([]byte, 1<<20)
			for {
				read, err := r.Body.Read(buf)
				n += int64(read)
				if err != nil {
					break
				}
			}
			offset += n
			w.Header().Set("Upload-Offset", strconv.FormatInt(offset, 10))
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPatch && strings.Contains(r.URL.Path, "/segments/"):
			json.NewDecoder(r.Body).Decode(&patch)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	o := New(api.NewClient(state.NewAuth(srv.URL)), ModeResumable)
	result, err := o.Run(context.Background(), testJob(t, content))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Sha256 == nil || *result.Sha256 != wantSha {
		t.Fatalf("expected local sha %s, got %+v", wantSha, result.Sha256)
	}
	if patch.FileSizeBytes != int64(len(content)) || patch.Sha256 == nil || *patch.Sha256 != wantSha {
		t.Fatalf("segment patch must carry local size/sha in resumable mode: %+v", patch)
	}
}
