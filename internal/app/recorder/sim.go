package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sim is a file-writing stand-in for the hardware recorder: it appends
// pseudo-frames to an mp4-named file until stopped, then reports the file as
// the artifact. One Sim drives one recording.
type Sim struct {
	Dir string

	once sync.Once
	stop chan struct{}
	done chan Result
}

func NewSim(dir string) *Sim {
	return &Sim{
		Dir:  dir,
		stop: make(chan struct{}),
		done: make(chan Result, 1),
	}
}

func (r *Sim) Start(ctx context.Context) error {
	path := filepath.Join(r.Dir, fmt.Sprintf("ride-%d.mp4", time.Now().UnixNano()))
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	go func() {
		frame := make([]byte, 4096)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				file.Close()
				r.done <- Result{Err: ctx.Err()}
				return
			case <-r.stop:
				if err := file.Close(); err != nil {
					r.done <- Result{Err: err}
					return
				}
				r.done <- Result{Artifact: Artifact{
					Path:   path,
					Codec:  "h264",
					Width:  1920,
					Height: 1080,
					FPS:    30,
				}}
				return
			case <-ticker.C:
				if _, err := file.Write(frame); err != nil {
					file.Close()
					r.done <- Result{Err: err}
					return
				}
			}
		}
	}()
	return nil
}

func (r *Sim) RequestStop() {
	r.once.Do(func() { close(r.stop) })
}

func (r *Sim) Done() <-chan Result { return r.done }
