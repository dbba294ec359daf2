package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AnamariaDum/BikeRecorder/internal/app/state"
)

// Error carries a non-2xx response verbatim as the error detail.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// Client is the typed REST client for the backend. The bearer token and base
// URL come from the shared auth state on every call, so a sign-in or device
// registration is visible to the very next request.
type Client struct {
	http *http.Client
	auth *state.Auth
}

func NewClient(auth *state.Auth) *Client {
	return &Client{
		http: &http.Client{},
		auth: auth,
	}
}

// Auth exposes the shared session context the client reads from.
func (c *Client) Auth() *state.Auth { return c.auth }

// SignIn exchanges credentials for a bearer token and stores it, then loads
// the profile for the signed-in user.
func (c *Client) SignIn(ctx context.Context, email, password, name string) error {
	var resp SignInResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/token", SignInRequest{Email: email, Password: password, Name: name}, &resp)
	if err != nil {
		return err
	}
	c.auth.SetToken(resp.AccessToken)

	profile, err := c.Me(ctx)
	if err != nil {
		return err
	}
	c.auth.SetProfile(profile)
	return nil
}

func (c *Client) Me(ctx context.Context) (state.Profile, error) {
	var p state.Profile
	if err := c.doJSON(ctx, http.MethodGet, "/me", nil, &p); err != nil {
		return state.Profile{}, err
	}
	return p, nil
}

func (c *Client) RegisterDevice(ctx context.Context, req RegisterDeviceRequest) (Device, error) {
	var d Device
	if err := c.doJSON(ctx, http.MethodPost, "/devices/register", req, &d); err != nil {
		return Device{}, err
	}
	return d, nil
}

func (c *Client) CreateTrip(ctx context.Context, deviceID string, startedAt time.Time) (Trip, error) {
	var t Trip
	req := CreateTripRequest{DeviceID: deviceID, StartTimeUTC: isoUTC(startedAt)}
	if err := c.doJSON(ctx, http.MethodPost, "/trips", req, &t); err != nil {
		return Trip{}, err
	}
	return t, nil
}

func (c *Client) CreateSegment(ctx context.Context, tripID string, req CreateSegmentRequest) (Segment, error) {
	var s Segment
	if err := c.doJSON(ctx, http.MethodPost, "/trips/"+tripID+"/segments", req, &s); err != nil {
		return Segment{}, err
	}
	return s, nil
}

func (c *Client) PatchSegment(ctx context.Context, tripID, segmentID string, req PatchSegmentRequest) error {
	return c.doJSON(ctx, http.MethodPatch, "/trips/"+tripID+"/segments/"+segmentID, req, nil)
}

func (c *Client) PostMetadata(ctx context.Context, segmentID string, req MetadataRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/segments/"+segmentID+"/metadata", req, nil)
}

func (c *Client) FinalizeTrip(ctx context.Context, tripID string, req FinalizeTripRequest) error {
	return c.doJSON(ctx, http.MethodPatch, "/trips/"+tripID, req, nil)
}

func (c *Client) ListTrips(ctx context.Context) ([]Trip, error) {
	var resp ListTripsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/trips", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Trips, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.auth.BaseURL()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setAuth(req *http.Request) {
	if token := c.auth.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	return &Error{Status: resp.StatusCode, Body: string(detail)}
}

func isoUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
