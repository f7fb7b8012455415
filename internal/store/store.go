// Package store provides the durable, path-addressed artifact layer shared by
// every pipeline stage. Artifacts are keyed by (document, stage, unit) and are
// only considered present when both the blob and its completion marker exist,
// so a crash mid-write never leaves a readable half-artifact.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/nanoslide/nanoslide/internal/domain"
)

// ErrNotFound is returned when an artifact (or its marker) is absent.
var ErrNotFound = errors.New("artifact not found")

// Key addresses one artifact.
type Key struct {
	Doc   domain.DocumentID
	Stage domain.Stage
	Unit  int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Doc, k.Stage, k.Unit)
}

// Marker is the completion sidecar written next to every artifact. The plan
// fingerprint records which committed plan the artifact was produced from;
// downstream stages treat a fingerprint mismatch as "absent" so superseded
// artifacts are never silently reused, while remaining on disk.
type Marker struct {
	PlanFingerprint string    `json:"plan_fingerprint,omitempty"`
	SHA256          string    `json:"sha256"`
	SizeBytes       int64     `json:"size_bytes"`
	WrittenAt       time.Time `json:"written_at"`
}

// Store maps artifact keys onto the per-document output layout. It never
// deletes: stale artifacts persist until the user clears outputs.
type Store struct {
	root string
}

// New creates a store rooted at the given output directory.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the output root directory.
func (s *Store) Root() string {
	return s.root
}

// DocumentRoot returns the per-document output directory.
func (s *Store) DocumentRoot(doc domain.DocumentID) string {
	return filepath.Join(s.root, string(doc))
}

// Path returns the blob path for a key. Singleton stages (plan, presentation,
// fused video) use unit 0.
func (s *Store) Path(k Key) string {
	docRoot := s.DocumentRoot(k.Doc)
	switch k.Stage {
	case domain.StagePlan:
		return filepath.Join(docRoot, "plan.json")
	case domain.StageSlides:
		return filepath.Join(docRoot, "slides", fmt.Sprintf("slide_%04d.png", k.Unit))
	case domain.StagePresentation:
		return filepath.Join(docRoot, "presentation.pptx")
	case domain.StageVideo:
		return filepath.Join(docRoot, "video", fmt.Sprintf("segment_%04d.mp4", k.Unit))
	case domain.StageFused:
		return filepath.Join(docRoot, "video", "fused.mp4")
	default:
		return filepath.Join(docRoot, string(k.Stage), fmt.Sprintf("unit_%04d", k.Unit))
	}
}

func (s *Store) markerPath(k Key) string {
	return s.Path(k) + ".done"
}

// StagingPath returns a sibling path producers can stream large payloads into
// before calling Publish. It is never observed by readers.
func (s *Store) StagingPath(k Key) string {
	return s.Path(k) + ".partial"
}

// Exists reports whether the artifact is durably committed: blob and marker
// both present.
func (s *Store) Exists(k Key) bool {
	if _, err := os.Stat(s.Path(k)); err != nil {
		return false
	}
	if _, err := os.Stat(s.markerPath(k)); err != nil {
		return false
	}
	return true
}

// ExistsFor reports whether the artifact is committed and was produced from
// the plan with the given fingerprint. Artifacts from a superseded plan fail
// this check even though their bytes remain on disk.
func (s *Store) ExistsFor(k Key, planFingerprint string) bool {
	m, err := s.Marker(k)
	if err != nil {
		return false
	}
	return m.PlanFingerprint == planFingerprint
}

// Marker reads the completion marker for a key.
func (s *Store) Marker(k Key) (*Marker, error) {
	if _, err := os.Stat(s.Path(k)); err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.markerPath(k))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, domain.IOError(fmt.Sprintf("read marker %s", k), err)
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, domain.IOError(fmt.Sprintf("decode marker %s", k), err)
	}
	return &m, nil
}

// Write durably commits an artifact: blob first (temp file + rename), then
// its marker. Overwrite semantics; readers never observe a partial write.
func (s *Store) Write(k Key, data []byte, planFingerprint string) error {
	path := s.Path(k)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return domain.IOError(fmt.Sprintf("create artifact directory for %s", k), err)
	}

	if err := atomicWriteFile(path, data, 0644); err != nil {
		return domain.IOError(fmt.Sprintf("write artifact %s", k), err)
	}

	hash := sha256.Sum256(data)
	return s.commitMarker(k, Marker{
		PlanFingerprint: planFingerprint,
		SHA256:          hex.EncodeToString(hash[:]),
		SizeBytes:       int64(len(data)),
		WrittenAt:       time.Now().UTC(),
	})
}

// Publish commits an artifact whose payload was already produced at srcPath
// (typically the key's StagingPath): rename into place, then write the marker.
func (s *Store) Publish(k Key, srcPath, planFingerprint string) error {
	path := s.Path(k)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return domain.IOError(fmt.Sprintf("create artifact directory for %s", k), err)
	}

	sum, size, err := hashFile(srcPath)
	if err != nil {
		return domain.IOError(fmt.Sprintf("hash staged artifact %s", k), err)
	}

	if err := os.Rename(srcPath, path); err != nil {
		return domain.IOError(fmt.Sprintf("publish artifact %s", k), err)
	}
	syncDir(filepath.Dir(path))

	return s.commitMarker(k, Marker{
		PlanFingerprint: planFingerprint,
		SHA256:          sum,
		SizeBytes:       size,
		WrittenAt:       time.Now().UTC(),
	})
}

// Read returns the artifact payload, or ErrNotFound if it is not committed.
func (s *Store) Read(k Key) ([]byte, error) {
	if !s.Exists(k) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.Path(k))
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("read artifact %s", k), err)
	}
	return data, nil
}

func (s *Store) commitMarker(k Key, m Marker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return domain.IOError(fmt.Sprintf("encode marker %s", k), err)
	}
	if err := atomicWriteFile(s.markerPath(k), data, 0644); err != nil {
		return domain.IOError(fmt.Sprintf("write marker %s", k), err)
	}
	return nil
}

func hashFile(path string) (string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), int64(len(data)), nil
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place, so readers observe either the old content or the new.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%s.*", filepath.Base(path)))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanupTmp := true

	defer func() {
		_ = tmp.Close()
		if cleanupTmp {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	cleanupTmp = false

	syncDir(dir)
	return nil
}

// syncDir fsyncs a directory so a rename survives a crash. Windows doesn't
// support syncing directories; skip it there.
func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	if f, err := os.Open(dir); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
}
