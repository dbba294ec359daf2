package device

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/singleflight"

	"github.com/AnamariaDum/BikeRecorder/internal/app/api"
)

// AppVersion is the fixed tag sent with every device registration.
const AppVersion = "1.0.0"

// ErrRegistration marks a failed device registration; a session never starts
// without a device identity.
var ErrRegistration = errors.New("device registration failed")

// Registrar ensures exactly one device record exists remotely per
// installation. The id is cached in the shared auth state; concurrent callers
// share a single in-flight registration instead of issuing duplicates.
type Registrar struct {
	client *api.Client
	info   api.RegisterDeviceRequest
	group  singleflight.Group
}

func NewRegistrar(client *api.Client, info api.RegisterDeviceRequest) *Registrar {
	return &Registrar{client: client, info: info}
}

// DefaultInfo describes the host the recorder runs on.
func DefaultInfo(model string) api.RegisterDeviceRequest {
	return api.RegisterDeviceRequest{
		Platform:   runtime.GOOS,
		Model:      model,
		OSVersion:  runtime.Version(),
		AppVersion: AppVersion,
	}
}

// Ensure returns the cached device id or registers the device once.
func (r *Registrar) Ensure(ctx context.Context) (string, error) {
	auth := r.client.Auth()
	if id := auth.DeviceID(); id != "" {
		return id, nil
	}

	v, err, _ := r.group.Do("register", func() (any, error) {
		// A caller that queued behind the winning flight sees its result here.
		if id := auth.DeviceID(); id != "" {
			return id, nil
		}
		d, err := r.client.RegisterDevice(ctx, r.info)
		if err != nil {
			return nil, err
		}
		auth.SetDeviceID(d.ID)
		return d.ID, nil
	})
	if err != nil {
		return "", errors.Join(ErrRegistration, err)
	}
	return v.(string), nil
}
