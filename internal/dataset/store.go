package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	trainingDir = "training-data"
	verifyDir   = "verify-data"
	modelDir    = "model"
)

// Entry is a single row in a directory listing.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
}

// VerifyFile is one file of a folder upload, kept in declared order.
type VerifyFile struct {
	Name string
	Data []byte
}

// Store owns the on-disk dataset hierarchy:
//
//	<base>/<project>/training-data/<label>/<image>
//	<base>/<project>/verify-data/<folder>/<image>
//	<base>/<project>/model
type Store struct {
	basePath string
}

func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating dataset root: %v", ErrStorage, err)
	}
	return &Store{basePath: basePath}, nil
}

func (s *Store) BasePath() string {
	return s.basePath
}

// validSegment rejects anything that could escape its parent directory.
func validSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	return true
}

func segments(names ...string) error {
	for _, n := range names {
		if !validSegment(n) {
			return fmt.Errorf("%w: %q", ErrInvalidName, n)
		}
	}
	return nil
}

func (s *Store) projectPath(project string) string {
	return filepath.Join(s.basePath, project)
}

// TrainingDir returns the directory holding a project's labeled images.
func (s *Store) TrainingDir(project string) string {
	return filepath.Join(s.basePath, project, trainingDir)
}

// ModelDir returns the directory a trained model is saved under.
func (s *Store) ModelDir(project string) string {
	return filepath.Join(s.basePath, project, modelDir)
}

func (s *Store) labelPath(project, label string) string {
	return filepath.Join(s.basePath, project, trainingDir, label)
}

// VerifyFolderDir returns the directory of one verification folder.
func (s *Store) VerifyFolderDir(project, folder string) string {
	return filepath.Join(s.basePath, project, verifyDir, folder)
}

func (s *Store) EnsureProject(project string) error {
	if err := segments(project); err != nil {
		return err
	}
	for _, dir := range []string{
		filepath.Join(s.projectPath(project), trainingDir),
		filepath.Join(s.projectPath(project), verifyDir),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: creating project %s: %v", ErrStorage, project, err)
		}
	}
	return nil
}

func (s *Store) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("%w: listing projects: %v", ErrStorage, err)
	}
	var projects []string
	for _, e := range entries {
		if e.IsDir() {
			projects = append(projects, e.Name())
		}
	}
	return projects, nil
}

// EnsureLabelDir is an idempotent label-directory creation.
func (s *Store) EnsureLabelDir(project, label string) error {
	if err := segments(project, label); err != nil {
		return err
	}
	if err := os.MkdirAll(s.labelPath(project, label), 0755); err != nil {
		return fmt.Errorf("%w: creating label %s: %v", ErrStorage, label, err)
	}
	return nil
}

// WriteImage stores an uploaded image under a fresh generated name, keeping
// only the extension of the client-supplied name. Size policy is enforced by
// the caller, not here.
func (s *Store) WriteImage(project, label, originalName string, data []byte) (string, error) {
	if err := segments(project, label); err != nil {
		return "", err
	}
	if err := s.EnsureLabelDir(project, label); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	filename := uuid.New().String() + ext
	fullPath := filepath.Join(s.labelPath(project, label), filename)

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("%w: writing image: %v", ErrStorage, err)
	}
	return filename, nil
}

// MoveImage relocates an image between labels with a single rename, so an
// observer never sees the image in neither label.
func (s *Store) MoveImage(project, srcLabel, dstLabel, name string) error {
	if err := segments(project, srcLabel, dstLabel, name); err != nil {
		return err
	}

	src := filepath.Join(s.labelPath(project, srcLabel), name)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: image %s in label %s", ErrNotFound, name, srcLabel)
		}
		return fmt.Errorf("%w: checking %s: %v", ErrStorage, name, err)
	}

	if err := s.EnsureLabelDir(project, dstLabel); err != nil {
		return err
	}

	dst := filepath.Join(s.labelPath(project, dstLabel), name)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("%w: moving %s: %v", ErrStorage, name, err)
	}
	return nil
}

func (s *Store) DeleteImage(project, label, name string) error {
	if err := segments(project, label, name); err != nil {
		return err
	}

	path := filepath.Join(s.labelPath(project, label), name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: image %s in label %s", ErrNotFound, name, label)
		}
		return fmt.Errorf("%w: checking %s: %v", ErrStorage, name, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: deleting %s: %v", ErrStorage, name, err)
	}
	return nil
}

func (s *Store) CreateLabel(project, label string) error {
	if err := segments(project, label); err != nil {
		return err
	}
	if _, err := os.Stat(s.labelPath(project, label)); err == nil {
		return fmt.Errorf("%w: label %s", ErrAlreadyExists, label)
	}
	return s.EnsureLabelDir(project, label)
}

// DeleteLabel removes a label directory and every image in it.
func (s *Store) DeleteLabel(project, label string) error {
	if err := segments(project, label); err != nil {
		return err
	}

	path := s.labelPath(project, label)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: label %s", ErrNotFound, label)
		}
		return fmt.Errorf("%w: checking label %s: %v", ErrStorage, label, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: removing label %s: %v", ErrStorage, label, err)
	}
	return nil
}

func (s *Store) ListLabels(project string) ([]string, error) {
	if err := segments(project); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.TrainingDir(project))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: listing labels: %v", ErrStorage, err)
	}
	var labels []string
	for _, e := range entries {
		if e.IsDir() {
			labels = append(labels, e.Name())
		}
	}
	return labels, nil
}

// CreateVerifyFolder creates a verification folder under the desired name,
// appending -1, -2, ... until a free name is found, then writes every file
// under its original name. Verification images are not renamed.
func (s *Store) CreateVerifyFolder(project, desired string, files []VerifyFile) (string, error) {
	if err := segments(project, desired); err != nil {
		return "", err
	}
	for _, f := range files {
		if err := segments(f.Name); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Join(s.projectPath(project), verifyDir), 0755); err != nil {
		return "", fmt.Errorf("%w: creating verify root: %v", ErrStorage, err)
	}

	actual := desired
	for i := 1; ; i++ {
		err := os.Mkdir(s.VerifyFolderDir(project, actual), 0755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("%w: creating folder %s: %v", ErrStorage, actual, err)
		}
		actual = fmt.Sprintf("%s-%d", desired, i)
	}

	for _, f := range files {
		path := filepath.Join(s.VerifyFolderDir(project, actual), f.Name)
		if err := os.WriteFile(path, f.Data, 0644); err != nil {
			return "", fmt.Errorf("%w: writing %s: %v", ErrStorage, f.Name, err)
		}
	}
	return actual, nil
}

// VerifyFolderExists reports whether a verification folder is present, with
// the same name validation as every other folder operation.
func (s *Store) VerifyFolderExists(project, folder string) error {
	if err := segments(project, folder); err != nil {
		return err
	}
	if _, err := os.Stat(s.VerifyFolderDir(project, folder)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: folder %s", ErrNotFound, folder)
		}
		return fmt.Errorf("%w: checking folder %s: %v", ErrStorage, folder, err)
	}
	return nil
}

// ListDirectory lists one directory relative to the dataset root.
func (s *Store) ListDirectory(rel string) ([]Entry, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: directory %s", ErrNotFound, rel)
		}
		return nil, fmt.Errorf("%w: listing %s: %v", ErrStorage, rel, err)
	}
	listing := make([]Entry, 0, len(entries))
	for _, e := range entries {
		listing = append(listing, Entry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return listing, nil
}

// Open returns a reader over one file relative to the dataset root.
func (s *Store) Open(rel string) (io.ReadSeekCloser, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: file %s", ErrNotFound, rel)
		}
		return nil, fmt.Errorf("%w: opening %s: %v", ErrStorage, rel, err)
	}
	return file, nil
}

func (s *Store) resolve(rel string) (string, error) {
	clean := filepath.Clean("/" + rel)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("%w: path %q", ErrInvalidName, rel)
	}
	return filepath.Join(s.basePath, clean), nil
}
