package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidName is returned for call ids that cannot be used as a file name.
	ErrInvalidName = errors.New("invalid recording name")
	// ErrExists is returned when a recording for the call id was already written.
	ErrExists = errors.New("recording already exists")
	// ErrNotFound is returned when no recording exists for the call id.
	ErrNotFound = errors.New("recording not found")
)

const recordingExt = ".wav"

// Driver is the durable sink for finalized call recordings.
type Driver interface {
	// WriteRecording stores r under callID and returns where it was written.
	WriteRecording(ctx context.Context, callID string, r io.Reader) (string, error)
	// OpenRecording returns the stored recording and its size.
	OpenRecording(callID string) (io.ReadCloser, int64, error)
}

type LocalDriver struct {
	basePath string
}

func NewLocalDriver(basePath string) *LocalDriver {
	if basePath == "" {
		basePath = "Recordings"
	}
	return &LocalDriver{basePath: basePath}
}

// ValidateName rejects call ids that would escape the recordings directory.
func ValidateName(callID string) error {
	if callID == "" || callID == "." || callID == ".." ||
		strings.ContainsAny(callID, `/\`) || strings.Contains(callID, "..") ||
		strings.ContainsRune(callID, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, callID)
	}
	return nil
}

func (d *LocalDriver) path(callID string) string {
	return filepath.Join(d.basePath, callID+recordingExt)
}

// WriteRecording creates <base>/<callID>.wav. Recordings are write-once: an
// existing file is never replaced. Data is staged in a temp file and hard
// linked into place, so readers never see a partial recording.
func (d *LocalDriver) WriteRecording(ctx context.Context, callID string, r io.Reader) (string, error) {
	if err := ValidateName(callID); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.basePath, 0755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	filePath := d.path(callID)
	if _, err := os.Lstat(filePath); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, callID)
	}

	file, err := os.CreateTemp(d.basePath, "."+callID+"-*.part")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := file.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(file, contextReader{ctx: ctx, r: r}); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to sync file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return "", fmt.Errorf("failed to set file mode: %w", err)
	}

	// Link fails if the target exists, which keeps concurrent writers from
	// replacing each other.
	if err := os.Link(tmpPath, filePath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, callID)
		}
		return "", fmt.Errorf("failed to publish file: %w", err)
	}

	return filePath, nil
}

func (d *LocalDriver) OpenRecording(callID string) (io.ReadCloser, int64, error) {
	if err := ValidateName(callID); err != nil {
		return nil, 0, err
	}

	file, err := os.Open(d.path(callID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, callID)
		}
		return nil, 0, fmt.Errorf("failed to open recording: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("failed to stat recording: %w", err)
	}
	return file, info.Size(), nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func NewDriver(driverType string, localPath string) (Driver, error) {
	switch strings.ToLower(driverType) {
	case "", "local":
		return NewLocalDriver(localPath), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driverType)
	}
}
