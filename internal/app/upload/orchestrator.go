package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/AnamariaDum/BikeRecorder/internal/app/api"
	"github.com/AnamariaDum/BikeRecorder/internal/app/location"
	"github.com/AnamariaDum/BikeRecorder/internal/app/recorder"
)

// Pipeline step names, in execution order.
const (
	StepStat          = "stat"
	StepCreateTrip    = "create-trip"
	StepCreateSegment = "create-segment"
	StepUploadFile    = "upload-file"
	StepParseResponse = "parse-response"
	StepPatchSegment  = "patch-segment"
	StepPostMetadata  = "post-metadata"
	StepFinalizeTrip  = "finalize-trip"
)

// StepError names the first step that failed; everything after it was
// skipped. Already-created remote resources are left as-is.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("upload step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Job is one finished recording ready to stage.
type Job struct {
	Artifact   recorder.Artifact
	Samples    []location.Sample
	SamplingOK bool
	DeviceID   string
	StartedAt  time.Time
	StoppedAt  time.Time
}

// Result reports the remote resources a successful run produced.
type Result struct {
	TripID    string
	SegmentID string
	SizeBytes int64
	Sha256    *string
}

const (
	ModeMultipart = "multipart"
	ModeResumable = "resumable"

	fileTypeVideo = "video_mp4"
)

// Orchestrator drives the ordered upload handshake. Steps are strictly
// sequential: each one needs identifiers minted by the one before it. The
// first failure aborts the rest; nothing is retried or rolled back.
type Orchestrator struct {
	client *api.Client
	mode   string
}

func New(client *api.Client, mode string) *Orchestrator {
	if mode == "" {
		mode = ModeMultipart
	}
	return &Orchestrator{client: client, mode: mode}
}

func (o *Orchestrator) Run(ctx context.Context, job Job) (Result, error) {
	// Authoritative duration comes from the wall-clock start/stop pair, never
	// from the display timer.
	duration := int64(job.StoppedAt.Sub(job.StartedAt).Seconds())

	// 1. metadata-only stat; the file content stays on disk
	info, err := os.Stat(job.Artifact.Path)
	if err != nil {
		return Result{}, &StepError{Step: StepStat, Err: err}
	}
	localSize := info.Size()

	// 2. create trip
	trip, err := o.client.CreateTrip(ctx, job.DeviceID, job.StartedAt)
	if err != nil {
		return Result{}, &StepError{Step: StepCreateTrip, Err: err}
	}

	// 3. create segment 0 under it
	segment, err := o.client.CreateSegment(ctx, trip.ID, api.CreateSegmentRequest{
		Index:         0,
		VideoCodec:    job.Artifact.Codec,
		ExpectedBytes: localSize,
		Width:         job.Artifact.Width,
		Height:        job.Artifact.Height,
		FPS:           job.Artifact.FPS,
	})
	if err != nil {
		return Result{}, &StepError{Step: StepCreateSegment, Err: err}
	}

	params := api.UploadParams{
		Path:      job.Artifact.Path,
		TripID:    trip.ID,
		SegmentID: segment.ID,
		Filename:  filepath.Base(job.Artifact.Path),
		FileType:  fileTypeVideo,
	}

	// 4+5. upload the bytes, then resolve the size/checksum to record
	size, sha, err := o.transfer(ctx, params, localSize)
	if err != nil {
		return Result{}, err
	}

	// 6. mark the segment complete with final size/checksum/duration
	err = o.client.PatchSegment(ctx, trip.ID, segment.ID, api.PatchSegmentRequest{
		FileSizeBytes: size,
		Sha256:        sha,
		DurationS:     duration,
		Status:        "complete",
	})
	if err != nil {
		return Result{}, &StepError{Step: StepPatchSegment, Err: err}
	}

	// 7. GPS track, skipped entirely when sampling was unavailable
	if job.SamplingOK {
		content, err := location.MarshalJSONL(job.Samples)
		if err != nil {
			return Result{}, &StepError{Step: StepPostMetadata, Err: err}
		}
		err = o.client.PostMetadata(ctx, segment.ID, api.MetadataRequest{
			Type:     "gps_jsonl",
			Content:  content,
			Filename: "track.jsonl",
		})
		if err != nil {
			return Result{}, &StepError{Step: StepPostMetadata, Err: err}
		}
	}

	// 8. finalize the trip
	err = o.client.FinalizeTrip(ctx, trip.ID, api.FinalizeTripRequest{
		EndTimeUTC: job.StoppedAt.UTC().Format(time.RFC3339),
		DurationS:  duration,
		Status:     "complete",
	})
	if err != nil {
		return Result{}, &StepError{Step: StepFinalizeTrip, Err: err}
	}

	return Result{TripID: trip.ID, SegmentID: segment.ID, SizeBytes: size, Sha256: sha}, nil
}

// transfer moves the artifact bytes and returns the size/checksum to record
// on the segment: the server-reported pair when available, otherwise the
// locally observed size with no checksum (verification is then skipped).
func (o *Orchestrator) transfer(ctx context.Context, params api.UploadParams, localSize int64) (int64, *string, error) {
	if o.mode == ModeResumable {
		sha, err := hashFile(params.Path)
		if err != nil {
			return 0, nil, &StepError{Step: StepUploadFile, Err: err}
		}
		if err := o.client.UploadVideoResumable(ctx, params, localSize, sha); err != nil {
			return 0, nil, &StepError{Step: StepUploadFile, Err: err}
		}
		return localSize, &sha, nil
	}

	result, err := o.client.UploadVideo(ctx, params)
	if err != nil {
		return 0, nil, &StepError{Step: StepUploadFile, Err: err}
	}
	size := localSize
	if result.Size != nil {
		size = *result.Size
	}
	return size, result.Sha, nil
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
