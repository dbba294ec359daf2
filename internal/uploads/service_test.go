package uploads

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
)

func newService(t *testing.T) (*Service, pgxmock.PgxPoolIface, string) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	dir := t.TempDir()
	return NewService(mock, client, dir), mock, dir
}

func expectOwnedSegment(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery(`SELECT s.id FROM segments s`).
		WithArgs("s1", "t1", "u1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("s1"))
}

func TestStoreMultipart(t *testing.T) {
	svc, mock, dir := newService(t)
	payload := []byte("frame-bytes-0123456789")
	sum := sha256.Sum256(payload)
	sha := hex.EncodeToString(sum[:])

	expectOwnedSegment(mock)
	mock.ExpectExec(`UPDATE segments SET file_size_bytes`).
		WithArgs("s1", "t1", int64(len(payload)), sha).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	result, err := svc.StoreMultipart(context.Background(), "u1", "t1", "s1", "ride.mp4", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if result.Status != "ok" || result.Size != int64(len(payload)) || result.Sha != sha {
		t.Fatalf("unexpected result %+v", result)
	}

	stored, err := os.ReadFile(filepath.Join(dir, "t1", "s1", "ride.mp4"))
	if err != nil {
		t.Fatalf("read stored: %v", err)
	}
	if !bytes.Equal(stored, payload) {
		t.Fatal("stored bytes differ from payload")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestStoreMultipartForeignSegment(t *testing.T) {
	svc, mock, _ := newService(t)
	mock.ExpectQuery(`SELECT s.id FROM segments s`).
		WithArgs("s1", "t1", "u1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := svc.StoreMultipart(context.Background(), "u1", "t1", "s1", "ride.mp4", bytes.NewReader(nil))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResumableUploadLifecycle(t *testing.T) {
	svc, mock, _ := newService(t)
	payload := []byte("0123456789abcdef0123456789abcdef")
	sum := sha256.Sum256(payload)
	sha := hex.EncodeToString(sum[:])

	expectOwnedSegment(mock)
	mock.ExpectExec(`UPDATE segments SET file_size_bytes`).
		WithArgs("s1", "t1", int64(len(payload)), sha).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	session, err := svc.CreateSession(context.Background(), "u1", CreateSessionRequest{
		TripID: "t1", SegmentID: "s1", Filename: "ride.mp4", FileType: "video_mp4",
		Sha256: sha, UploadLength: int64(len(payload)),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Offset != 0 || session.Status != SessionOpen {
		t.Fatalf("unexpected session %+v", session)
	}

	session, err = svc.AppendChunk(context.Background(), "u1", session.ID, 0, bytes.NewReader(payload[:16]))
	if err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	if session.Offset != 16 || session.Status != SessionOpen {
		t.Fatalf("after first chunk %+v", session)
	}

	// Interrupted client asks where to resume.
	session, err = svc.GetSession(context.Background(), "u1", session.ID)
	if err != nil || session.Offset != 16 {
		t.Fatalf("resume offset: %v %+v", err, session)
	}

	session, err = svc.AppendChunk(context.Background(), "u1", session.ID, 16, bytes.NewReader(payload[16:]))
	if err != nil {
		t.Fatalf("final chunk: %v", err)
	}
	if session.Status != SessionComplete || session.Offset != int64(len(payload)) {
		t.Fatalf("after final chunk %+v", session)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAppendChunkOffsetMismatch(t *testing.T) {
	svc, mock, _ := newService(t)
	expectOwnedSegment(mock)

	session, err := svc.CreateSession(context.Background(), "u1", CreateSessionRequest{
		TripID: "t1", SegmentID: "s1", Filename: "ride.mp4", UploadLength: 32,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, err = svc.AppendChunk(context.Background(), "u1", session.ID, 8, bytes.NewReader([]byte("late")))
	if !errors.Is(err, ErrOffsetMismatch) {
		t.Fatalf("expected ErrOffsetMismatch, got %v", err)
	}
}

func TestFinishChecksumMismatch(t *testing.T) {
	svc, mock, _ := newService(t)
	payload := []byte("0123456789abcdef")

	expectOwnedSegment(mock)

	session, err := svc.CreateSession(context.Background(), "u1", CreateSessionRequest{
		TripID: "t1", SegmentID: "s1", Filename: "ride.mp4",
		Sha256: "deadbeef", UploadLength: int64(len(payload)),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, err = svc.AppendChunk(context.Background(), "u1", session.ID, 0, bytes.NewReader(payload))
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestGetSessionWrongUser(t *testing.T) {
	svc, mock, _ := newService(t)
	expectOwnedSegment(mock)

	session, err := svc.CreateSession(context.Background(), "u1", CreateSessionRequest{
		TripID: "t1", SegmentID: "s1", Filename: "ride.mp4", UploadLength: 8,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, err = svc.GetSession(context.Background(), "somebody-else", session.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
