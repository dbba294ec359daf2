package api

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
)

// UploadParams names the artifact and the resources it belongs to.
type UploadParams struct {
	Path      string
	TripID    string
	SegmentID string
	Filename  string
	FileType  string
}

// UploadVideo streams the artifact to POST /uploads/multipart. The file is
// piped through the multipart writer chunk by chunk and is never held in
// memory whole. Any non-2xx response is a hard failure; a 2xx response whose
// body is not the expected JSON yields an empty UploadResult so the caller
// can fall back to locally observed values.
func (c *Client) UploadVideo(ctx context.Context, p UploadParams) (UploadResult, error) {
	file, err := os.Open(p.Path)
	if err != nil {
		return UploadResult{}, err
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeMultipart(mw, file, p)
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.auth.BaseURL()+"/uploads/multipart", pr)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return UploadResult{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return UploadResult{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return UploadResult{}, err
	}
	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		// Server did not report size/sha; not an error, the caller falls back.
		return UploadResult{}, nil
	}
	return result, nil
}

func writeMultipart(mw *multipart.Writer, file *os.File, p UploadParams) error {
	fields := map[string]string{
		"trip_id":    p.TripID,
		"segment_id": p.SegmentID,
		"filename":   p.Filename,
		"file_type":  p.FileType,
	}
	for _, key := range []string{"trip_id", "segment_id", "filename", "file_type"} {
		if err := mw.WriteField(key, fields[key]); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", p.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}
