package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/AnamariaDum/BikeRecorder/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound         = errors.New("uploads: not found")
	ErrOffsetMismatch   = errors.New("uploads: offset mismatch")
	ErrChecksumMismatch = errors.New("uploads: checksum mismatch")
)

type Service struct {
	db         db.Querier
	redis      *redis.Client
	storageDir string
}

func NewService(db db.Querier, redisClient *redis.Client, storageDir string) *Service {
	return &Service{db: db, redis: redisClient, storageDir: storageDir}
}

// StoreMultipart drains one file part to disk, hashing and counting as it
// goes, then stamps the observed size and sha onto the segment row.
func (s *Service) StoreMultipart(ctx context.Context, userID, tripID, segmentID, filename string, file io.Reader) (MultipartResult, error) {
	if err := s.ownSegment(ctx, userID, tripID, segmentID); err != nil {
		return MultipartResult{}, err
	}

	path := s.objectPath(tripID, segmentID, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return MultipartResult{}, err
	}
	out, err := os.Create(path)
	if err != nil {
		return MultipartResult{}, err
	}
	defer out.Close()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hasher), file)
	if err != nil {
		return MultipartResult{}, err
	}
	sha := hex.EncodeToString(hasher.Sum(nil))

	if err := s.markUploaded(ctx, tripID, segmentID, size, sha); err != nil {
		return MultipartResult{}, err
	}
	return MultipartResult{Status: "ok", Size: size, Sha: sha}, nil
}

// CreateSession opens a resumable upload and pre-creates the target file.
func (s *Service) CreateSession(ctx context.Context, userID string, req CreateSessionRequest) (Session, error) {
	if err := s.ownSegment(ctx, userID, req.TripID, req.SegmentID); err != nil {
		return Session{}, err
	}

	session := Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		TripID:       req.TripID,
		SegmentID:    req.SegmentID,
		Filename:     req.Filename,
		FileType:     req.FileType,
		Sha256:       req.Sha256,
		UploadLength: req.UploadLength,
		Status:       SessionOpen,
	}

	path := s.sessionPath(session)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Session{}, err
	}
	out, err := os.Create(path)
	if err != nil {
		return Session{}, err
	}
	out.Close()

	if err := s.saveSession(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// GetSession loads a session owned by the user.
func (s *Service) GetSession(ctx context.Context, userID, id string) (Session, error) {
	raw, err := s.redis.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return Session{}, err
	}
	if session.UserID != userID {
		return Session{}, ErrNotFound
	}
	return session, nil
}

// AppendChunk writes one chunk at the declared offset. The offset must match
// what the session holds; anything else means client and server disagree and
// the client has to re-sync via a HEAD request. When the final byte lands the
// whole file is hashed, verified against the declared checksum, and the
// segment row is stamped.
func (s *Service) AppendChunk(ctx context.Context, userID, id string, offset int64, chunk io.Reader) (Session, error) {
	session, err := s.GetSession(ctx, userID, id)
	if err != nil {
		return Session{}, err
	}
	if offset != session.Offset {
		return Session{}, fmt.Errorf("%w: have %d, got %d", ErrOffsetMismatch, session.Offset, offset)
	}

	out, err := os.OpenFile(s.sessionPath(session), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Session{}, err
	}
	n, err := io.Copy(out, chunk)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Session{}, err
	}

	session.Offset += n
	if session.Offset >= session.UploadLength {
		if err := s.finish(ctx, &session); err != nil {
			return Session{}, err
		}
	}
	if err := s.saveSession(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

func (s *Service) finish(ctx context.Context, session *Session) error {
	sha, err := fileSha256(s.sessionPath(*session))
	if err != nil {
		return err
	}
	if session.Sha256 != "" && session.Sha256 != sha {
		return fmt.Errorf("%w: declared %s, stored %s", ErrChecksumMismatch, session.Sha256, sha)
	}
	if err := s.markUploaded(ctx, session.TripID, session.SegmentID, session.Offset, sha); err != nil {
		return err
	}
	session.Status = SessionComplete
	return nil
}

func (s *Service) saveSession(ctx context.Context, session Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, sessionKey(session.ID), raw, sessionTTL).Err()
}

func (s *Service) ownSegment(ctx context.Context, userID, tripID, segmentID string) error {
	var id string
	err := s.db.QueryRow(ctx, `
		SELECT s.id FROM segments s
		JOIN trips t ON t.id = s.trip_id
		WHERE s.id=$1 AND s.trip_id=$2 AND t.user_id=$3
	`, segmentID, tripID, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Service) markUploaded(ctx context.Context, tripID, segmentID string, size int64, sha string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE segments SET file_size_bytes=$3, sha256=$4, status='uploaded'
		WHERE id=$1 AND trip_id=$2
	`, segmentID, tripID, size, sha)
	return err
}

func (s *Service) objectPath(tripID, segmentID, filename string) string {
	return filepath.Join(s.storageDir, tripID, segmentID, filepath.Base(filename))
}

func (s *Service) sessionPath(session Session) string {
	return s.objectPath(session.TripID, session.SegmentID, session.Filename)
}

func sessionKey(id string) string {
	return "uploads:" + id
}

func fileSha256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
