package trips

import "time"

const (
	StatusOpen     = "open"
	StatusComplete = "complete"

	SegmentPending  = "pending"
	SegmentUploaded = "uploaded"
	SegmentComplete = "complete"
)

type Trip struct {
	ID           string     `json:"id"`
	UserID       string     `json:"-"`
	DeviceID     string     `json:"device_id"`
	StartTimeUTC time.Time  `json:"start_time_utc"`
	EndTimeUTC   *time.Time `json:"end_time_utc,omitempty"`
	DurationS    int64      `json:"duration_s,omitempty"`
	DistanceKm   float64    `json:"distance_km,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	Segments     []Segment  `json:"segments,omitempty"`
}

type Segment struct {
	ID            string    `json:"id"`
	TripID        string    `json:"trip_id"`
	Index         int       `json:"index"`
	VideoCodec    string    `json:"video_codec"`
	ExpectedBytes int64     `json:"expected_bytes"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	FPS           int       `json:"fps"`
	FileSizeBytes int64     `json:"file_size_bytes,omitempty"`
	Sha256        *string   `json:"sha256,omitempty"`
	DurationS     int64     `json:"duration_s,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type CreateTripRequest struct {
	DeviceID     string    `json:"device_id"`
	StartTimeUTC time.Time `json:"start_time_utc"`
}

type CreateSegmentRequest struct {
	Index         int    `json:"index"`
	VideoCodec    string `json:"video_codec"`
	ExpectedBytes int64  `json:"expected_bytes"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	FPS           int    `json:"fps"`
}

type PatchSegmentRequest struct {
	FileSizeBytes *int64  `json:"file_size_bytes"`
	Sha256        *string `json:"sha256"`
	DurationS     *int64  `json:"duration_s"`
	Status        *string `json:"status"`
}

type FinalizeTripRequest struct {
	EndTimeUTC time.Time `json:"end_time_utc"`
	DurationS  int64     `json:"duration_s"`
	Status     string    `json:"status"`
}

type MetadataRequest struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

type Metadata struct {
	ID        string    `json:"id"`
	SegmentID string    `json:"segment_id"`
	Type      string    `json:"type"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

type ListTripsResponse struct {
	Trips []Trip `json:"trips"`
}
