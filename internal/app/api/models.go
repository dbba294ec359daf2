package api

// Request and response shapes for the BikeRecorder backend. Every endpoint
// gets an explicit type; nothing is decoded into loose maps.

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type SignInResponse struct {
	AccessToken string `json:"access_token"`
}

type RegisterDeviceRequest struct {
	Platform   string `json:"platform"`
	Model      string `json:"model"`
	OSVersion  string `json:"os_version"`
	AppVersion string `json:"app_version"`
}

type Device struct {
	ID string `json:"id"`
}

type CreateTripRequest struct {
	DeviceID     string `json:"device_id"`
	StartTimeUTC string `json:"start_time_utc"`
}

type Trip struct {
	ID           string    `json:"id"`
	StartTimeUTC string    `json:"start_time_utc"`
	EndTimeUTC   string    `json:"end_time_utc,omitempty"`
	DurationS    int64     `json:"duration_s,omitempty"`
	Status       string    `json:"status"`
	Segments     []Segment `json:"segments,omitempty"`
}

type CreateSegmentRequest struct {
	Index         int    `json:"index"`
	VideoCodec    string `json:"video_codec"`
	ExpectedBytes int64  `json:"expected_bytes"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	FPS           int    `json:"fps"`
}

type Segment struct {
	ID            string  `json:"id"`
	Index         int     `json:"index"`
	FileSizeBytes int64   `json:"file_size_bytes,omitempty"`
	Sha256        *string `json:"sha256,omitempty"`
	DurationS     int64   `json:"duration_s,omitempty"`
	Status        string  `json:"status"`
}

// UploadResult is the multipart upload response. Size and Sha are pointers:
// a server that did not report them leaves the caller to fall back to the
// locally observed size and no checksum.
type UploadResult struct {
	Status string  `json:"status"`
	Size   *int64  `json:"size"`
	Sha    *string `json:"sha"`
}

type PatchSegmentRequest struct {
	FileSizeBytes int64   `json:"file_size_bytes"`
	Sha256        *string `json:"sha256"`
	DurationS     int64   `json:"duration_s"`
	Status        string  `json:"status"`
}

type MetadataRequest struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

type FinalizeTripRequest struct {
	EndTimeUTC string `json:"end_time_utc"`
	DurationS  int64  `json:"duration_s"`
	Status     string `json:"status"`
}

type ListTripsResponse struct {
	Trips []Trip `json:"trips"`
}

// CreateUploadRequest opens a resumable upload session.
type CreateUploadRequest struct {
	TripID       string `json:"trip_id"`
	SegmentID    string `json:"segment_id"`
	Filename     string `json:"filename"`
	FileType     string `json:"file_type"`
	Sha256       string `json:"sha256,omitempty"`
	UploadLength int64  `json:"upload_length"`
}

type UploadSession struct {
	ID           string `json:"id"`
	Offset       int64  `json:"offset"`
	UploadLength int64  `json:"upload_length"`
	Status       string `json:"status"`
}
