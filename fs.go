package mcrecover

import (
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

// Fs is a read only afero.Fs view of the files of a card.
// All files live in the root directory. The view is a snapshot of the file
// list at the time Card.Fs was called.
type Fs struct {
	names []string
	files map[string]*File
}

var _ afero.Fs = (*Fs)(nil)

func newFs(files []*File) *Fs {
	fs := &Fs{
		files: make(map[string]*File, len(files)),
	}

	for _, f := range files {
		name := f.ExportName()
		if _, ok := fs.files[name]; ok {
			ext := path.Ext(name)
			base := strings.TrimSuffix(name, ext)
			for n := 1; ; n++ {
				candidate := base + "-" + strconv.Itoa(n) + ext
				if _, ok := fs.files[candidate]; !ok {
					name = candidate
					break
				}
			}
		}
		fs.files[name] = f
		fs.names = append(fs.names, name)
	}
	sort.Strings(fs.names)

	return fs
}

func cleanName(name string) string {
	name = strings.Trim(path.Clean("/"+name), "/")
	if name == "" {
		return "."
	}
	return name
}

func (fs *Fs) Create(name string) (afero.File, error) {
	return nil, &os.PathError{Op: "create", Path: name, Err: syscall.EPERM}
}

func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	return &os.PathError{Op: "mkdir", Path: name, Err: syscall.EPERM}
}

func (fs *Fs) MkdirAll(path string, perm os.FileMode) error {
	return &os.PathError{Op: "mkdir", Path: path, Err: syscall.EPERM}
}

func (fs *Fs) Open(name string) (afero.File, error) {
	name = cleanName(name)
	if name == "." {
		entries := make([]os.FileInfo, len(fs.names))
		for i, n := range fs.names {
			entries[i] = fileInfo{name: n, file: fs.files[n]}
		}
		return &handle{name: name, entries: entries}, nil
	}

	f, ok := fs.files[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return &handle{name: name, file: f, data: f.Export()}, nil
}

// OpenFile only supports read only access.
func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.EPERM}
	}
	return fs.Open(name)
}

func (fs *Fs) Remove(name string) error {
	return &os.PathError{Op: "remove", Path: name, Err: syscall.EPERM}
}

func (fs *Fs) RemoveAll(path string) error {
	return &os.PathError{Op: "remove", Path: path, Err: syscall.EPERM}
}

func (fs *Fs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EPERM}
}

func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	name = cleanName(name)
	if name == "." {
		return rootInfo{}, nil
	}

	f, ok := fs.files[name]
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
	return fileInfo{name: name, file: f}, nil
}

func (fs *Fs) Name() string {
	return "mcrecover"
}

func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	return &os.PathError{Op: "chmod", Path: name, Err: syscall.EPERM}
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	return &os.PathError{Op: "chown", Path: name, Err: syscall.EPERM}
}

func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return &os.PathError{Op: "chtimes", Path: name, Err: syscall.EPERM}
}
