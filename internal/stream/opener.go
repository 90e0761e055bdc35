package stream

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"github.com/indigo-web/preview/http/status"
)

var errNotDir = syscall.ENOTDIR

// OSOpener opens files from the local file system. With Confine set, files whose
// real location (after following symlinks) lies outside Root are rejected.
type OSOpener struct {
	Root    string
	Confine bool
}

func (o OSOpener) Open(path string) (File, error) {
	if o.Confine {
		if err := o.confine(path); err != nil {
			return nil, err
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return file, nil
}

func (o OSOpener) confine(path string) error {
	root, err := filepath.EvalSymlinks(o.Root)
	if err != nil {
		return err
	}

	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || (len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)) {
		return errors.Join(status.ErrPathRejected, errors.New("symlink leads outside the root"))
	}

	return nil
}
