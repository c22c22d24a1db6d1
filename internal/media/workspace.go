package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Workspace owns every temporary file of one request. Sweep must run on
// every exit path; it removes the directory and anything registered inside it.
type Workspace struct {
	dir       string
	seq       int
	tracked   []string
	log       *logrus.Entry
	remove    func(string) error
	removeAll func(string) error
}

// NewWorkspace creates a fresh request directory under root.
func NewWorkspace(root string, log *logrus.Entry) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	dir, err := os.MkdirTemp(root, "audioprep-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{
		dir:       dir,
		log:       log,
		remove:    os.Remove,
		removeAll: os.RemoveAll,
	}, nil
}

func (w *Workspace) Dir() string { return w.dir }

// NewPath reserves a unique file name inside the workspace. The file is not created.
func (w *Workspace) NewPath(name string) string {
	w.seq++
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "asset"
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%02d_%s", w.seq, name))
	w.tracked = append(w.tracked, path)
	return path
}

// Track registers a temporary path created outside the workspace directory.
func (w *Workspace) Track(path string) {
	w.tracked = append(w.tracked, path)
}

// Discard removes a path the caller gave up on (a partially written output).
func (w *Workspace) Discard(path string) {
	if err := w.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.log.WithError(err).WithField("path", path).Warn("discard temp file")
	}
}

// Supersede deletes prev once next has been written, unless prev is the caller's upload.
func (w *Workspace) Supersede(prev, next Asset) {
	if !prev.Derived || prev.Path == "" || prev.Path == next.Path {
		return
	}
	w.Discard(prev.Path)
}

// Sweep removes everything the workspace handed out. Failures are collected
// under ErrCleanupFailed so the caller can log and count them.
func (w *Workspace) Sweep() error {
	var errs []error
	for i := len(w.tracked) - 1; i >= 0; i-- {
		path := w.tracked[i]
		if strings.HasPrefix(path, w.dir+string(filepath.Separator)) {
			continue
		}
		if err := w.removeAll(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	if err := w.removeAll(w.dir); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", w.dir, err))
	}
	w.tracked = nil
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrCleanupFailed, errors.Join(errs...))
	}
	return nil
}
