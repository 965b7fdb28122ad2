// Package artifact reads and writes the files exchanged between pipeline
// stages. Writes are atomic: a failed write never leaves a partial file.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dshills/storytrace/internal/schema"
)

// File names inside an output directory.
const (
	RequirementsFile       = "requirements.json"
	StoriesFile            = "stories.json"
	DuplicatesFile         = "duplicates.json"
	TestCasesFile          = "testcases.csv"
	FeaturesDir            = "features"
	CoverageMatrixFile     = "coverage_matrix.csv"
	EpicCoverageFile       = "epic_coverage.csv"
	ComplianceEvidenceFile = "compliance_evidence.csv"
	SummaryJSONFile        = "summary.json"
	SummaryMarkdownFile    = "summary.md"
)

// ErrMissingInput is returned when a stage's required input file is absent.
// Errors wrapping it also match fs.ErrNotExist.
var ErrMissingInput = errors.New("missing input artifact")

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s: %w", ErrMissingInput, path, err)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// LoadRequirements reads a requirements.json file.
func LoadRequirements(path string) ([]schema.Requirement, error) {
	var reqs []schema.Requirement
	if err := ReadJSON(path, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// LoadStories reads a stories.json file.
func LoadStories(path string) ([]schema.Story, error) {
	var stories []schema.Story
	if err := ReadJSON(path, &stories); err != nil {
		return nil, err
	}
	return stories, nil
}

// MissingInput wraps a not-exist error from opening path as ErrMissingInput.
// Other errors are returned wrapped with the path.
func MissingInput(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrMissingInput, path, err)
	}
	return fmt.Errorf("opening %s: %w", path, err)
}

// WriteFile writes data to path via a temp file in the same directory and a
// rename, creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	tmp, err := stage(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// stage writes data to a temp file next to path and returns its name.
func stage(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	fail := func(err error) (string, error) {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return tmp.Name(), nil
}

// Set is a group of artifacts written together by Commit: either every
// file lands or none of them does.
type Set struct {
	files []pending
	err   error
}

type pending struct {
	path string
	data []byte
}

// Add queues data for path.
func (s *Set) Add(path string, data []byte) {
	s.files = append(s.files, pending{path: path, data: data})
}

// AddJSON queues v as indented JSON. An encoding error fails Commit.
func (s *Set) AddJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		if s.err == nil {
			s.err = fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
		}
		return
	}
	s.Add(path, append(data, '\n'))
}

// Commit stages every queued file as a temp file, then renames them into
// place in order. A failure before the renames leaves the output directory
// untouched; a failed rename removes the files this Commit already placed.
func (s *Set) Commit() error {
	if s.err != nil {
		return s.err
	}
	temps := make([]string, 0, len(s.files))
	cleanup := func() {
		for _, t := range temps {
			os.Remove(t)
		}
	}
	for _, f := range s.files {
		tmp, err := stage(f.path, f.data)
		if err != nil {
			cleanup()
			return err
		}
		temps = append(temps, tmp)
	}
	for i, f := range s.files {
		if err := os.Rename(temps[i], f.path); err != nil {
			for _, placed := range s.files[:i] {
				os.Remove(placed.path)
			}
			temps = temps[i:]
			cleanup()
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
	}
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return WriteFile(path, append(data, '\n'))
}

// WriteCSV writes a header row followed by rows.
func WriteCSV(path string, header []string, rows [][]string) error {
	data, err := EncodeCSV(header, rows)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return WriteFile(path, data)
}
