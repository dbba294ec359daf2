package state

import "sync"

// Profile is the signed-in user as returned by GET /me.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Auth holds the process-wide session context: bearer token, server base
// URL, the signed-in profile and the registered device id. It is empty at
// process start, written by sign-in and device registration, and read by
// everything else. Writes are visible to the very next read.
type Auth struct {
	mu       sync.RWMutex
	baseURL  string
	token    string
	profile  *Profile
	deviceID string
}

func NewAuth(baseURL string) *Auth {
	return &Auth{baseURL: baseURL}
}

func (a *Auth) BaseURL() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.baseURL
}

func (a *Auth) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *Auth) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

func (a *Auth) Profile() *Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.profile
}

func (a *Auth) SetProfile(p Profile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profile = &p
}

func (a *Auth) DeviceID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.deviceID
}

func (a *Auth) SetDeviceID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deviceID = id
}

// SignOut clears everything except the server endpoint.
func (a *Auth) SignOut() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.profile = nil
	a.deviceID = ""
}
