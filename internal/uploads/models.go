package uploads

import "time"

const (
	SessionOpen     = "open"
	SessionComplete = "complete"

	sessionTTL = 24 * time.Hour
)

// Session is a resumable upload in progress. It lives in redis so a client
// that reconnects can ask for the offset and continue where it left off.
type Session struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id,omitempty"`
	TripID       string `json:"trip_id,omitempty"`
	SegmentID    string `json:"segment_id,omitempty"`
	Filename     string `json:"filename,omitempty"`
	FileType     string `json:"file_type,omitempty"`
	Sha256       string `json:"sha256,omitempty"`
	UploadLength int64  `json:"upload_length"`
	Offset       int64  `json:"offset"`
	Status       string `json:"status"`
}

type CreateSessionRequest struct {
	TripID       string `json:"trip_id"`
	SegmentID    string `json:"segment_id"`
	Filename     string `json:"filename"`
	FileType     string `json:"file_type"`
	Sha256       string `json:"sha256"`
	UploadLength int64  `json:"upload_length"`
}

// MultipartResult is the body of a successful multipart upload. Size and sha
// are what the server actually observed on disk.
type MultipartResult struct {
	Status string `json:"status"`
	Size   int64  `json:"size"`
	Sha    string `json:"sha"`
}
