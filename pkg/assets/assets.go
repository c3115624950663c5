package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ErrNotFound is returned when no prerecorded audio exists for a name.
var ErrNotFound = errors.New("audio asset not found")

// Names are DTMF symbols (0-9, A-D, *, #) or short identifiers like "hello".
var validName = regexp.MustCompile(`^[0-9A-Za-z*#_-]{1,64}$`)

// DirSource serves prerecorded WAV files from a directory, one file per name.
type DirSource struct {
	dir string
	ext string
}

func NewDirSource(dir string) *DirSource {
	if dir == "" {
		dir = "digits"
	}
	return &DirSource{dir: dir, ext: ".wav"}
}

// Load returns the bytes of <dir>/<name>.wav. Files are read on every call so
// assets can be replaced without a restart.
func (s *DirSource) Load(name string) ([]byte, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name+s.ext))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read asset %s: %w", name, err)
	}
	return data, nil
}

// Dir returns the directory assets are read from.
func (s *DirSource) Dir() string {
	return s.dir
}
