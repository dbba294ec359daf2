package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
)

// Resumable upload flow: open an upload session, then push the file in
// offset-addressed chunks. Interrupted transfers restart from the offset the
// server reports instead of re-sending the whole file.

const chunkSize = 1 << 20

func (c *Client) CreateUpload(ctx context.Context, req CreateUploadRequest) (UploadSession, error) {
	var session UploadSession
	if err := c.doJSON(ctx, http.MethodPost, "/uploads", req, &session); err != nil {
		return UploadSession{}, err
	}
	return session, nil
}

// UploadOffset asks the server how much of the upload it already holds.
func (c *Client) UploadOffset(ctx context.Context, uploadID string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.auth.BaseURL()+"/uploads/"+uploadID, nil)
	if err != nil {
		return 0, err
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}
	return strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
}

// PatchChunk appends one chunk at the given offset and returns the new offset.
func (c *Client) PatchChunk(ctx context.Context, uploadID string, offset int64, chunk []byte) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.auth.BaseURL()+"/uploads/"+uploadID, bytes.NewReader(chunk))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/offset+octet-stream")
	req.Header.Set("Upload-Offset", strconv.FormatInt(offset, 10))
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}
	return strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
}

// UploadVideoResumable drives a whole-file resumable transfer, resuming from
// the server-reported offset when the session already has bytes.
func (c *Client) UploadVideoResumable(ctx context.Context, p UploadParams, size int64, sha256 string) error {
	session, err := c.CreateUpload(ctx, CreateUploadRequest{
		TripID:       p.TripID,
		SegmentID:    p.SegmentID,
		Filename:     p.Filename,
		FileType:     p.FileType,
		Sha256:       sha256,
		UploadLength: size,
	})
	if err != nil {
		return err
	}

	file, err := os.Open(p.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	offset := session.Offset
	buf := make([]byte, chunkSize)
	for offset < size {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		n, err := io.ReadFull(file, buf)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			err = nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("upload %s: file shorter than declared length %d", session.ID, size)
		}
		offset, err = c.PatchChunk(ctx, session.ID, offset, buf[:n])
		if err != nil {
			return err
		}
	}
	return nil
}
