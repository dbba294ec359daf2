package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/AnamariaDum/BikeRecorder/internal/app/api"
	"github.com/AnamariaDum/BikeRecorder/internal/app/device"
	"github.com/AnamariaDum/BikeRecorder/internal/app/location"
	"github.com/AnamariaDum/BikeRecorder/internal/app/recorder"
	"github.com/AnamariaDum/BikeRecorder/internal/app/session"
	"github.com/AnamariaDum/BikeRecorder/internal/app/state"
	"github.com/AnamariaDum/BikeRecorder/internal/app/upload"
	"github.com/AnamariaDum/BikeRecorder/internal/config"

	"github.com/joho/godotenv"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig func() config.Config
	out        io.Writer
	run        func(context.Context, config.Config, io.Writer) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig: func() config.Config {
			_ = godotenv.Load()
			return config.Load()
		},
		out: os.Stdout,
		run: Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	if err := deps.run(context.Background(), cfg, deps.out); err != nil {
		log.Printf("recorder exited with error: %v", err)
	}
}

// Run records one simulated ride end to end: sign in, record for the
// configured window, stop, wait for the upload pipeline, then print the
// rider's trips.
func Run(ctx context.Context, cfg config.Config, out io.Writer) error {
	auth := state.NewAuth(cfg.ServerURL)
	client := api.NewClient(auth)

	if err := client.SignIn(ctx, cfg.RiderEmail, cfg.RiderPassword, cfg.RiderName); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	fmt.Fprintf(out, "signed in as %s\n", auth.Profile().Email)

	machine := session.NewMachine(session.Deps{
		Permissions: session.GrantAll{},
		Registrar:   device.NewRegistrar(client, device.DefaultInfo("sim-rig")),
		Source:      &location.SimSource{Lat: 46.77, Lon: 23.59},
		NewRecorder: func() recorder.Recorder { return recorder.NewSim(os.TempDir()) },
		Uploader:    upload.New(client, cfg.UploadMode),
		OnStatus: func(st session.Status) {
			fmt.Fprintf(out, "[%s] samples=%d elapsed=%ds %s\n", st.State, st.SampleCount, st.ElapsedSeconds, st.Detail)
		},
	})

	if err := machine.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	select {
	case <-time.After(time.Duration(cfg.RecordSeconds) * time.Second):
	case <-ctx.Done():
	}

	if err := machine.Stop(); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}

	final := machine.Wait()
	if final.State != session.StateComplete {
		return fmt.Errorf("session ended in %s: %s %s", final.State, final.Reason, final.Detail)
	}
	fmt.Fprintf(out, "uploaded trip %s segment %s (%d bytes)\n",
		final.Upload.TripID, final.Upload.SegmentID, final.Upload.SizeBytes)

	trips, err := client.ListTrips(ctx)
	if err != nil {
		return fmt.Errorf("list trips: %w", err)
	}
	for _, trip := range trips {
		fmt.Fprintf(out, "trip %s status=%s duration=%ds segments=%d\n",
			trip.ID, trip.Status, trip.DurationS, len(trip.Segments))
	}
	return nil
}
