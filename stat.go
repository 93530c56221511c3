package mcrecover

import (
	"os"
	"time"
)

// FileInfo returns the os.FileInfo of a card file, named after its export
// name.
func (f *File) FileInfo() os.FileInfo {
	return fileInfo{name: f.ExportName(), file: f}
}

type fileInfo struct {
	name string
	file *File
}

func (i fileInfo) Name() string {
	return i.name
}

// Size is the size of the exported file.
func (i fileInfo) Size() int64 {
	return i.file.ExportSize()
}

// Mode is read only, files without write permission on the card have no
// write bits anyway.
func (i fileInfo) Mode() os.FileMode {
	return 0444
}

func (i fileInfo) ModTime() time.Time {
	return i.file.entry.Modified
}

func (i fileInfo) IsDir() bool {
	return false
}

// Sys returns the DirEntry of the file.
func (i fileInfo) Sys() interface{} {
	return i.file.entry
}

// rootInfo describes the flat root directory of a card.
type rootInfo struct{}

func (rootInfo) Name() string       { return "." }
func (rootInfo) Size() int64        { return 0 }
func (rootInfo) Mode() os.FileMode  { return os.ModeDir | 0555 }
func (rootInfo) ModTime() time.Time { return time.Time{} }
func (rootInfo) IsDir() bool        { return true }
func (rootInfo) Sys() interface{}   { return nil }
