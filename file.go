package mcrecover

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/aligator/mcrecover/checkpoint"
	"github.com/aligator/mcrecover/filedb"
	digest "github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
)

// These errors may occur while processing a file.
var (
	ErrReadFile = errors.New("could not read file completely")
	ErrSeekFile = errors.New("could not seek inside of the file")
	ErrReadDir  = errors.New("could not read the directory")
)

// FatSource tells where the chain of a recovered file came from.
type FatSource int

const (
	// FatExplicit chains were given by the caller.
	FatExplicit FatSource = iota
	// FatBAT chains were walked from the block allocation table.
	FatBAT
	// FatContiguous chains were inferred from the expected file length.
	FatContiguous
)

func (s FatSource) String() string {
	switch s {
	case FatBAT:
		return "bat"
	case FatContiguous:
		return "contiguous"
	default:
		return "explicit"
	}
}

// ChecksumStatus is the result of checking the checksums a signature
// descriptor declares for a file.
type ChecksumStatus int

const (
	ChecksumUnknown ChecksumStatus = iota
	ChecksumValid
	ChecksumInvalid
)

func (s ChecksumStatus) String() string {
	switch s {
	case ChecksumValid:
		return "valid"
	case ChecksumInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// LostInfo describes how a recovered file was found.
type LostInfo struct {
	Descriptor *filedb.Descriptor
	GameDesc   string
	FileDesc   string
	GameName   string
	FileInfo   string
	FatSource  FatSource
	Checksum   ChecksumStatus
}

// File is a file of a card, either referenced by the active directory table
// or recovered from unallocated blocks.
type File struct {
	format   Format
	encoding Encoding

	entry     DirEntry
	chain     Chain
	payload   []byte
	recovered bool
	lost      *LostInfo
}

// Entry returns the directory entry of the file. Recovered files return the
// synthesized entry.
func (f *File) Entry() DirEntry {
	return f.entry
}

// Filename returns the filename of the directory entry.
func (f *File) Filename() string {
	return f.entry.Filename
}

// Blocks returns the block chain of the file in order.
func (f *File) Blocks() []uint16 {
	return append([]uint16(nil), f.chain.Blocks...)
}

// Flags returns the anomalies found while resolving the chain.
func (f *File) Flags() ChainFlags {
	return f.chain.Flags
}

// Recovered returns true for files added by the lost file integration.
func (f *File) Recovered() bool {
	return f.recovered
}

// Lost returns the scan details of a recovered file, nil otherwise.
func (f *File) Lost() *LostInfo {
	return f.lost
}

// LoadFileData returns the payload: the content of all blocks of the chain
// in chain order.
func (f *File) LoadFileData() []byte {
	return append([]byte(nil), f.payload...)
}

// Size returns the payload size in bytes.
func (f *File) Size() int64 {
	return int64(len(f.payload))
}

// Digest returns the sha256 digest of the payload.
func (f *File) Digest() digest.Digest {
	return digest.FromBytes(f.payload)
}

// Comment returns the game and file description stored at the comment
// address of the file. Missing parts are empty.
func (f *File) Comment() (gameDesc, fileDesc string) {
	return readComment(f.payload, f.entry.CommentAddr, f.format, f.encoding)
}

func readComment(payload []byte, addr uint32, format Format, enc Encoding) (gameDesc, fileDesc string) {
	gameLen, fileLen := format.commentSizes()
	field := func(start, n int) string {
		if start < 0 || start >= len(payload) {
			return ""
		}
		end := start + n
		if end > len(payload) {
			end = len(payload)
		}
		return strings.TrimRight(enc.decode(payload[start:end]), " ")
	}

	start := int(addr)
	return field(start, gameLen), field(start+gameLen, fileLen)
}

// ExportName returns a filesystem safe name for the exported file, e.g.
// "01-GALE-gczelda.gci" for GameCube files or "SONICADV_SYS.vms" for VMU files.
func (f *File) ExportName() string {
	if f.format == FormatVMU {
		return sanitizeName(f.entry.Filename) + ".vms"
	}
	return sanitizeName(f.entry.Company) + "-" + sanitizeName(f.entry.GameCode) + "-" + sanitizeName(f.entry.Filename) + ".gci"
}

func sanitizeName(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '/' || r == '\\' || r == 0x7F {
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Export returns the file in its exchange format: GCI (directory entry
// followed by the payload) for GameCube files and the raw VMS payload for
// VMU files.
func (f *File) Export() []byte {
	if f.format == FormatVMU {
		return f.LoadFileData()
	}
	return f.gci()
}

// ExportSize is the length of Export.
func (f *File) ExportSize() int64 {
	if f.format == FormatVMU {
		return f.Size()
	}
	return gcnDirEntrySize + f.Size()
}

// GCI returns the file in the GCI exchange format: the 64 byte directory
// entry followed by the payload.
func (f *File) GCI() ([]byte, error) {
	if f.format != FormatGCN {
		return nil, checkpoint.Wrap(fmt.Errorf("format %v", f.format), ErrNotGameCube)
	}
	return f.gci(), nil
}

func (f *File) gci() []byte {
	entry := f.entry
	entry.Block = 0
	if len(f.chain.Blocks) > 0 {
		entry.Block = f.chain.Blocks[0]
	}
	entry.Length = uint16(len(f.chain.Blocks))

	out := encodeGcnDirEntry(entry, f.encoding)
	return append(out, f.payload...)
}

func (f *File) String() string {
	kind := "file"
	if f.recovered {
		kind = "lost file"
	}
	return fmt.Sprintf("%s %s %q (%d blocks)", kind, f.entry.ID(), f.entry.Filename, len(f.chain.Blocks))
}

// handle is an open File or the card root directory, it implements afero.File.
// A file handle reads the export form of its file.
type handle struct {
	// file is nil for the root directory.
	file    *File
	data    []byte
	name    string
	entries []os.FileInfo
	offset  int64
	closed  bool
}

var _ afero.File = (*handle)(nil)

func (h *handle) isDir() bool {
	return h.file == nil
}

func (h *handle) Close() error {
	if h.closed {
		return afero.ErrFileClosed
	}
	h.closed = true
	return nil
}

func (h *handle) Read(p []byte) (n int, err error) {
	if h.closed {
		return 0, afero.ErrFileClosed
	}
	if h.isDir() {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrReadFile)
	}
	if len(p) == 0 {
		return 0, nil
	}

	// Reading a file if the size has been already reached, makes no sense.
	if int64(len(h.data)) <= h.offset {
		return 0, io.EOF
	}

	n = copy(p, h.data[h.offset:])
	h.offset += int64(n)
	return n, nil
}

func (h *handle) ReadAt(p []byte, off int64) (n int, err error) {
	if h.closed {
		return 0, afero.ErrFileClosed
	}
	if h.isDir() {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrReadFile)
	}
	if off < 0 {
		return 0, checkpoint.Wrap(syscall.EINVAL, ErrReadFile)
	}

	// Reading over the end makes no sense.
	if int64(len(h.data)) <= off {
		return 0, io.EOF
	}

	n = copy(p, h.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek jumps to a specific offset in the file. This affects all Read operation except ReadAt.
// May return a syscall.EINVAL error if the whence value is invalid.
// May return an afero.ErrOutOfRange error if the offset is negative.
func (h *handle) Seek(offset int64, whence int) (int64, error) {
	if h.closed {
		return 0, afero.ErrFileClosed
	}
	if h.isDir() {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrSeekFile)
	}

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = h.offset + offset
	case io.SeekEnd:
		offset = int64(len(h.data)) + offset
	default:
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if offset < 0 {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, offset: %v, whence: %v", ErrSeekFile, offset, whence))
	}

	h.offset = offset
	return offset, nil
}

func (h *handle) Write(p []byte) (n int, err error) {
	return 0, &os.PathError{Op: "write", Path: h.name, Err: syscall.EPERM}
}

func (h *handle) WriteAt(p []byte, off int64) (n int, err error) {
	return 0, &os.PathError{Op: "write", Path: h.name, Err: syscall.EPERM}
}

func (h *handle) WriteString(s string) (ret int, err error) {
	return h.Write([]byte(s))
}

func (h *handle) Name() string {
	return h.name
}

// Readdir reads the contents of the root directory.
// May return syscall.ENOTDIR if the handle is no directory.
func (h *handle) Readdir(count int) ([]os.FileInfo, error) {
	if h.closed {
		return nil, afero.ErrFileClosed
	}
	if !h.isDir() {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}

	rest := h.entries[h.offset:]
	if count <= 0 {
		h.offset += int64(len(rest))
		return append([]os.FileInfo(nil), rest...), nil
	}

	if len(rest) == 0 {
		return nil, io.EOF
	}
	if count > len(rest) {
		count = len(rest)
	}
	h.offset += int64(count)
	return append([]os.FileInfo(nil), rest[:count]...), nil
}

func (h *handle) Readdirnames(count int) ([]string, error) {
	content, err := h.Readdir(count)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}

	return names, nil
}

func (h *handle) Stat() (os.FileInfo, error) {
	if h.isDir() {
		return rootInfo{}, nil
	}
	return fileInfo{name: h.name, file: h.file}, nil
}

func (h *handle) Sync() error {
	return nil
}

func (h *handle) Truncate(size int64) error {
	return &os.PathError{Op: "truncate", Path: h.name, Err: syscall.EPERM}
}
