package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/AnamariaDum/BikeRecorder/internal/app/device"
	"github.com/AnamariaDum/BikeRecorder/internal/app/location"
	"github.com/AnamariaDum/BikeRecorder/internal/app/recorder"
	"github.com/AnamariaDum/BikeRecorder/internal/app/upload"
)

type State string

const (
	StateIdle                State = "idle"
	StateAwaitingPermissions State = "awaiting-permissions"
	StateStarting            State = "starting"
	StateRecording           State = "recording"
	StateStopping            State = "stopping"
	StateUploading           State = "uploading"
	StateComplete            State = "complete"
	StateFailed              State = "failed"
)

// Failure reasons for StateFailed.
const (
	ReasonMissingPermissions  = "missing-permissions"
	ReasonDeviceRegistration  = "device-registration"
	ReasonSamplingUnavailable = "sampling-unavailable"
	ReasonCaptureError        = "capture-error"
	ReasonUploadError         = "upload-error"
)

type Permission string

const (
	PermCamera     Permission = "camera"
	PermMicrophone Permission = "microphone"
	PermLocation   Permission = "location"
)

// ErrPermissionDenied is returned by Permissions implementations when the
// user declines; re-invoking Start re-requests.
var ErrPermissionDenied = errors.New("permission denied")

// Permissions is the host permission-prompt boundary.
type Permissions interface {
	Request(ctx context.Context, perms ...Permission) error
}

// GrantAll is the CLI stand-in for the permission prompts.
type GrantAll struct{}

func (GrantAll) Request(context.Context, ...Permission) error { return nil }

// ErrSessionActive is returned by Start while a session is still running.
var ErrSessionActive = errors.New("a recording session is already active")

// Status is a UI-facing snapshot. ElapsedSeconds is recomputed from the
// session start time and carries no correctness weight.
type Status struct {
	State          State
	Reason         string
	Detail         string
	ElapsedSeconds int
	SampleCount    int
	Upload         *upload.Result
}

// Deps wires the machine's collaborators.
type Deps struct {
	Permissions Permissions
	Registrar   *device.Registrar
	Source      location.Source
	NewRecorder func() recorder.Recorder
	Uploader    *upload.Orchestrator
	Now         func() time.Time
	OnStatus    func(Status)
}

// trip is the single mutable holder for one recording attempt. Every handler
// reaches session data through Machine.current, never through values captured
// at subscription time, so a reset is observed by everything that runs later.
type trip struct {
	startedAt time.Time
	deviceID  string
	collector *location.Collector
	rec       recorder.Recorder
	stopTick  chan struct{}
	done      chan Status
}

// Machine drives one recording session at a time through
// Idle → AwaitingPermissions → Starting → Recording → Stopping → Uploading →
// Complete, with Failed reachable from every non-terminal state. Terminal
// states never resume; the next Start builds a fresh session.
type Machine struct {
	deps Deps

	mu      sync.Mutex
	state   State
	reason  string
	detail  string
	current *trip
	result  *upload.Result
}

func NewMachine(deps Deps) *Machine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Machine{deps: deps, state: StateIdle}
}

// Start runs the session up to Recording: permissions, device identity,
// fresh session state, location sampling, then the hardware recorder — in
// that order, so no start-time gap opens in the track.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateIdle, StateComplete, StateFailed:
	default:
		m.mu.Unlock()
		return ErrSessionActive
	}
	m.setLocked(StateAwaitingPermissions, "", "Requesting permissions")
	m.mu.Unlock()

	if err := m.deps.Permissions.Request(ctx, PermCamera, PermMicrophone, PermLocation); err != nil {
		return m.fail(nil, ReasonMissingPermissions, fmt.Sprintf("Permissions missing: %v", err))
	}

	m.set(StateStarting, "", "Preparing device")
	deviceID, err := m.deps.Registrar.Ensure(ctx)
	if err != nil {
		return m.fail(nil, ReasonDeviceRegistration, fmt.Sprintf("Device registration failed: %v", err))
	}

	// Fresh session: new start time, empty sample buffer, new recorder.
	sess := &trip{
		startedAt: m.deps.Now(),
		deviceID:  deviceID,
		collector: location.NewCollector(m.deps.Source),
		rec:       m.deps.NewRecorder(),
		stopTick:  make(chan struct{}),
		done:      make(chan Status, 1),
	}
	m.mu.Lock()
	m.current = sess
	m.result = nil
	m.mu.Unlock()

	// Sampling starts before the recorder so the track covers the first
	// frames; alignment is by wall-clock timestamp, not frame index.
	if err := sess.collector.Start(ctx); err != nil {
		return m.fail(sess, ReasonSamplingUnavailable, fmt.Sprintf("Location unavailable: %v", err))
	}

	if err := sess.rec.Start(ctx); err != nil {
		sess.collector.Stop()
		return m.fail(sess, ReasonCaptureError, fmt.Sprintf("Recorder failed to start: %v", err))
	}

	m.set(StateRecording, "", "Recording")
	go m.tick(sess)
	go m.watch(sess)
	return nil
}

// Stop asks the recorder to finish. The transition to Uploading happens only
// when the completion signal delivers the artifact; the collector keeps
// running until then so stop-flush samples are retained.
func (m *Machine) Stop() error {
	m.mu.Lock()
	if m.state != StateRecording {
		m.mu.Unlock()
		return fmt.Errorf("cannot stop from state %s", m.state)
	}
	sess := m.current
	m.setLocked(StateStopping, "", "Finishing recording")
	m.mu.Unlock()

	sess.rec.RequestStop()
	return nil
}

// Wait blocks until the current session reaches Complete or Failed.
func (m *Machine) Wait() Status {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess == nil {
		return m.Status()
	}
	return <-sess.done
}

// Status reports the current snapshot; safe to call from the UI at any time.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Machine) statusLocked() Status {
	s := Status{State: m.state, Reason: m.reason, Detail: m.detail, Upload: m.result}
	if sess := m.current; sess != nil {
		s.SampleCount = sess.collector.Count()
		if !sess.startedAt.IsZero() {
			s.ElapsedSeconds = int(m.deps.Now().Sub(sess.startedAt).Seconds())
		}
	}
	return s
}

// tick drives the 1 Hz display refresh. Purely observational: the duration
// sent to the backend never comes from here.
func (m *Machine) tick(sess *trip) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sess.stopTick:
			return
		case <-ticker.C:
			m.notify()
		}
	}
}

// watch waits for the recorder's completion signal and runs the handoff.
func (m *Machine) watch(sess *trip) {
	res := <-sess.rec.Done()
	close(sess.stopTick)

	// Collector teardown happens at the completion signal, not at the stop
	// request, to keep samples from the stop-flush window.
	sess.collector.Stop()
	stoppedAt := m.deps.Now()

	m.mu.Lock()
	stale := m.current != sess
	m.mu.Unlock()
	if stale {
		return
	}

	if res.Err != nil {
		if res.Artifact.Path != "" {
			discardArtifact(res.Artifact.Path)
		}
		m.fail(sess, ReasonCaptureError, fmt.Sprintf("Recording failed: %v", res.Err))
		return
	}

	m.set(StateUploading, "", "Uploading trip")
	result, err := m.deps.Uploader.Run(context.Background(), upload.Job{
		Artifact:   res.Artifact,
		Samples:    sess.collector.Drain(),
		SamplingOK: !sess.collector.Degraded(),
		DeviceID:   sess.deviceID,
		StartedAt:  sess.startedAt,
		StoppedAt:  stoppedAt,
	})
	if err != nil {
		reason := ReasonUploadError
		var stepErr *upload.StepError
		if errors.As(err, &stepErr) {
			reason = fmt.Sprintf("%s: %s", ReasonUploadError, stepErr.Step)
		}
		m.fail(sess, reason, fmt.Sprintf("Upload failed: %v", err))
		return
	}

	m.mu.Lock()
	m.result = &result
	m.setLocked(StateComplete, "", "Trip uploaded")
	status := m.statusLocked()
	m.mu.Unlock()
	m.publish(sess, status)
}

func (m *Machine) fail(sess *trip, reason, detail string) error {
	m.mu.Lock()
	m.setLocked(StateFailed, reason, detail)
	status := m.statusLocked()
	m.mu.Unlock()
	m.publish(sess, status)
	return errors.New(detail)
}

func (m *Machine) set(state State, reason, detail string) {
	m.mu.Lock()
	m.setLocked(state, reason, detail)
	m.mu.Unlock()
	m.notify()
}

func (m *Machine) setLocked(state State, reason, detail string) {
	m.state = state
	m.reason = reason
	m.detail = detail
}

func (m *Machine) notify() {
	if m.deps.OnStatus == nil {
		return
	}
	m.deps.OnStatus(m.Status())
}

// discardArtifact drops a partial recording left behind by a fault.
func discardArtifact(path string) {
	_ = os.Remove(path)
}

func (m *Machine) publish(sess *trip, status Status) {
	if m.deps.OnStatus != nil {
		m.deps.OnStatus(status)
	}
	if sess != nil {
		sess.done <- status
	}
}
