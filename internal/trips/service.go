package trips

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnamariaDum/BikeRecorder/internal/app/location"
	"github.com/AnamariaDum/BikeRecorder/internal/db"
	"github.com/AnamariaDum/BikeRecorder/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound           = errors.New("trips: not found")
	ErrSegmentsIncomplete = errors.New("trips: segments not complete")
)

// Broadcaster pushes live feed payloads to everyone watching a trip.
// *stream.Hub satisfies it; tests swap in a recorder.
type Broadcaster interface {
	Broadcast(tripID string, payload []byte)
}

type Service struct {
	db  db.Querier
	hub Broadcaster
}

func NewService(db db.Querier, hub Broadcaster) *Service {
	return &Service{db: db, hub: hub}
}

func (s *Service) CreateTrip(ctx context.Context, userID string, req CreateTripRequest) (Trip, error) {
	trip := Trip{
		ID:           uuid.NewString(),
		UserID:       userID,
		DeviceID:     req.DeviceID,
		StartTimeUTC: req.StartTimeUTC.UTC(),
		Status:       StatusOpen,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO trips (id, user_id, device_id, start_time_utc, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, trip.ID, trip.UserID, trip.DeviceID, trip.StartTimeUTC, trip.Status)
	if err := row.Scan(&trip.CreatedAt); err != nil {
		return Trip{}, err
	}
	return trip, nil
}

func (s *Service) CreateSegment(ctx context.Context, userID, tripID string, req CreateSegmentRequest) (Segment, error) {
	if err := s.ownTrip(ctx, userID, tripID); err != nil {
		return Segment{}, err
	}
	seg := Segment{
		ID:            uuid.NewString(),
		TripID:        tripID,
		Index:         req.Index,
		VideoCodec:    req.VideoCodec,
		ExpectedBytes: req.ExpectedBytes,
		Width:         req.Width,
		Height:        req.Height,
		FPS:           req.FPS,
		Status:        SegmentPending,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO segments (id, trip_id, idx, video_codec, expected_bytes, width, height, fps, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, seg.ID, seg.TripID, seg.Index, seg.VideoCodec, seg.ExpectedBytes, seg.Width, seg.Height, seg.FPS, seg.Status)
	if err := row.Scan(&seg.CreatedAt); err != nil {
		return Segment{}, err
	}
	return seg, nil
}

func (s *Service) PatchSegment(ctx context.Context, userID, tripID, segmentID string, req PatchSegmentRequest) (Segment, error) {
	if err := s.ownTrip(ctx, userID, tripID); err != nil {
		return Segment{}, err
	}
	seg, err := s.getSegment(ctx, tripID, segmentID)
	if err != nil {
		return Segment{}, err
	}
	if req.FileSizeBytes != nil {
		seg.FileSizeBytes = *req.FileSizeBytes
	}
	if req.Sha256 != nil {
		seg.Sha256 = req.Sha256
	}
	if req.DurationS != nil {
		seg.DurationS = *req.DurationS
	}
	if req.Status != nil {
		seg.Status = *req.Status
	}
	_, err = s.db.Exec(ctx, `
		UPDATE segments
		SET file_size_bytes=$3, sha256=$4, duration_s=$5, status=$6
		WHERE id=$1 AND trip_id=$2
	`, seg.ID, tripID, seg.FileSizeBytes, seg.Sha256, seg.DurationS, seg.Status)
	if err != nil {
		return Segment{}, err
	}
	return seg, nil
}

// FinalizeTrip closes a trip. A trip only completes once every segment row
// reports complete; partial uploads leave it open.
func (s *Service) FinalizeTrip(ctx context.Context, userID, tripID string, req FinalizeTripRequest) (Trip, error) {
	if err := s.ownTrip(ctx, userID, tripID); err != nil {
		return Trip{}, err
	}
	if req.Status == StatusComplete {
		var pending int
		err := s.db.QueryRow(ctx, `
			SELECT COUNT(*) FROM segments WHERE trip_id=$1 AND status <> $2
		`, tripID, SegmentComplete).Scan(&pending)
		if err != nil {
			return Trip{}, err
		}
		if pending > 0 {
			return Trip{}, fmt.Errorf("%w: %d pending", ErrSegmentsIncomplete, pending)
		}
	}
	end := req.EndTimeUTC.UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE trips SET end_time_utc=$2, duration_s=$3, status=$4 WHERE id=$1
	`, tripID, end, req.DurationS, req.Status)
	if err != nil {
		return Trip{}, err
	}
	return s.getTrip(ctx, userID, tripID)
}

func (s *Service) ListTrips(ctx context.Context, userID string) ([]Trip, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, device_id, start_time_utc, end_time_utc, duration_s, distance_km, status, created_at
		FROM trips WHERE user_id=$1
		ORDER BY start_time_utc DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := []Trip{}
	for rows.Next() {
		var t Trip
		if err := rows.Scan(&t.ID, &t.DeviceID, &t.StartTimeUTC, &t.EndTimeUTC, &t.DurationS, &t.DistanceKm, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.UserID = userID
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range trips {
		segments, err := s.segmentsForTrip(ctx, trips[i].ID)
		if err != nil {
			return nil, err
		}
		trips[i].Segments = segments
	}
	return trips, nil
}

// SaveMetadata attaches a sidecar document to a segment. GPS tracks are
// parsed, counted into a trip distance, and replayed onto the live feed so
// late viewers still see the route.
func (s *Service) SaveMetadata(ctx context.Context, userID, segmentID string, req MetadataRequest) (Metadata, error) {
	var tripID string
	err := s.db.QueryRow(ctx, `
		SELECT s.trip_id FROM segments s
		JOIN trips t ON t.id = s.trip_id
		WHERE s.id=$1 AND t.user_id=$2
	`, segmentID, userID).Scan(&tripID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, err
	}

	meta := Metadata{
		ID:        uuid.NewString(),
		SegmentID: segmentID,
		Type:      req.Type,
		Filename:  req.Filename,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO segment_metadata (id, segment_id, type, filename, content)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, meta.ID, meta.SegmentID, meta.Type, meta.Filename, req.Content)
	if err := row.Scan(&meta.CreatedAt); err != nil {
		return Metadata{}, err
	}

	if req.Type == "gps_jsonl" {
		if err := s.ingestTrack(ctx, tripID, req.Content); err != nil {
			return Metadata{}, err
		}
	}
	return meta, nil
}

func (s *Service) ingestTrack(ctx context.Context, tripID, content string) error {
	samples, err := location.DecodeJSONL(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("parse gps track: %w", err)
	}

	var distance float64
	for i := 1; i < len(samples); i++ {
		distance += geo.HaversineKm(samples[i-1].Lat, samples[i-1].Lon, samples[i].Lat, samples[i].Lon)
	}
	_, err = s.db.Exec(ctx, `
		UPDATE trips SET distance_km = distance_km + $2 WHERE id=$1
	`, tripID, distance)
	if err != nil {
		return err
	}

	if s.hub != nil {
		for _, sample := range samples {
			payload, err := json.Marshal(map[string]any{
				"type": "track_point",
				"ts":   sample.Ts.UTC().Format(time.RFC3339),
				"lat":  sample.Lat,
				"lon":  sample.Lon,
			})
			if err != nil {
				continue
			}
			s.hub.Broadcast(tripID, payload)
		}
	}
	return nil
}

func (s *Service) ownTrip(ctx context.Context, userID, tripID string) error {
	var id string
	err := s.db.QueryRow(ctx, `SELECT id FROM trips WHERE id=$1 AND user_id=$2`, tripID, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Service) getTrip(ctx context.Context, userID, tripID string) (Trip, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, device_id, start_time_utc, end_time_utc, duration_s, distance_km, status, created_at
		FROM trips WHERE id=$1 AND user_id=$2
	`, tripID, userID)
	var t Trip
	if err := row.Scan(&t.ID, &t.DeviceID, &t.StartTimeUTC, &t.EndTimeUTC, &t.DurationS, &t.DistanceKm, &t.Status, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Trip{}, ErrNotFound
		}
		return Trip{}, err
	}
	t.UserID = userID
	return t, nil
}

func (s *Service) getSegment(ctx context.Context, tripID, segmentID string) (Segment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, trip_id, idx, video_codec, expected_bytes, width, height, fps,
		       file_size_bytes, sha256, duration_s, status, created_at
		FROM segments WHERE id=$1 AND trip_id=$2
	`, segmentID, tripID)
	var seg Segment
	err := row.Scan(&seg.ID, &seg.TripID, &seg.Index, &seg.VideoCodec, &seg.ExpectedBytes,
		&seg.Width, &seg.Height, &seg.FPS, &seg.FileSizeBytes, &seg.Sha256, &seg.DurationS, &seg.Status, &seg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Segment{}, ErrNotFound
	}
	if err != nil {
		return Segment{}, err
	}
	return seg, nil
}

func (s *Service) segmentsForTrip(ctx context.Context, tripID string) ([]Segment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, trip_id, idx, video_codec, expected_bytes, width, height, fps,
		       file_size_bytes, sha256, duration_s, status, created_at
		FROM segments WHERE trip_id=$1
		ORDER BY idx
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		var seg Segment
		if err := rows.Scan(&seg.ID, &seg.TripID, &seg.Index, &seg.VideoCodec, &seg.ExpectedBytes,
			&seg.Width, &seg.Height, &seg.FPS, &seg.FileSizeBytes, &seg.Sha256, &seg.DurationS, &seg.Status, &seg.CreatedAt); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}
