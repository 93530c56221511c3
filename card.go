package mcrecover

import (
	"context"
	"fmt"
	"io"

	"github.com/aligator/mcrecover/checkpoint"
	"github.com/aligator/mcrecover/checksum"
	"github.com/aligator/mcrecover/filedb"
	"github.com/spf13/afero"
)

// Option configures a Card.
type Option func(c *Card)

// WithLogger sets the logger for all messages of the card and its scans.
func WithLogger(log Logger) Option {
	return func(c *Card) {
		if log != nil {
			c.log = log
		}
	}
}

// WithFormat skips format detection.
func WithFormat(f Format) Option {
	return func(c *Card) {
		c.format = f
	}
}

// Card is an opened memory card image.
//
// The card reads the active copies of the directory and block allocation
// table. Changing the active copy rebuilds the list of live files, recovered
// files stay. A Card is not safe for concurrent modification.
type Card struct {
	format Format
	store  *BlockStore
	sys    system
	log    Logger

	activeDat int
	activeBat int

	live []*File
	lost []*File
}

// Open reads a whole, optionally gzip or zstd compressed, image from r.
func Open(r io.Reader, opts ...Option) (*Card, error) {
	image, err := ReadImage(r)
	if err != nil {
		return nil, err
	}
	return New(image, opts...)
}

// OpenFile reads the image name from fs.
func OpenFile(fs afero.Fs, name string, opts ...Option) (*Card, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrInvalidImage)
	}
	defer f.Close()

	return Open(f, opts...)
}

// New opens a raw, uncompressed image. The card takes ownership of image.
func New(image []byte, opts ...Option) (*Card, error) {
	c := &Card{
		log: nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.format == FormatUnknown {
		c.format = DetectFormat(image)
		if c.format == FormatUnknown {
			return nil, checkpoint.Wrap(fmt.Errorf("image of %d bytes", len(image)), ErrUnknownFormat)
		}
	}

	store, err := NewBlockStore(image, c.format.BlockSize())
	if err != nil {
		return nil, err
	}
	c.store = store

	c.sys, err = readSystem(c.format, store)
	if err != nil {
		return nil, err
	}

	if c.format == FormatGCN {
		if c.sys.headerStored != c.sys.headerComputed {
			c.log.Warnf("header checksum mismatch: stored %v, computed %v", c.sys.headerStored, c.sys.headerComputed)
		}
		if want := uint16(c.sys.geometry.NumBlocks / 16); c.sys.header.SizeMbits != want {
			c.log.Warnf("header claims %d Mbit, image has %d Mbit", c.sys.header.SizeMbits, want)
		}
	}

	c.activeDat, err = SelectActive(c.sys.dirs)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrCorruptDirectory)
	}
	c.activeBat, err = SelectActive(c.sys.bats)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrCorruptBlockTable)
	}
	logCopies(c.log, "directory", c.sys.dirs, c.activeDat)
	logCopies(c.log, "block table", c.sys.bats, c.activeBat)

	c.rebuild()
	return c, nil
}

func logCopies[T any](log Logger, name string, copies []TableCopy[T], active int) {
	for _, cp := range copies {
		if !cp.Valid {
			log.Warnf("%s copy %d is invalid: %s", name, cp.Index, cp.Reason)
		}
	}
	log.Debugf("%s copy %d is active", name, active)
}

// rebuild derives the live files from the active tables.
func (c *Card) rebuild() {
	dir := c.sys.dirs[c.activeDat].Data
	bat := c.sys.bats[c.activeBat].Data
	g := c.sys.geometry

	c.live = nil
	if dir == nil || bat == nil {
		return
	}

	for _, entry := range dir.Entries {
		chain := Walk(entry.Block, bat, g)
		if len(chain.Blocks) != int(entry.Length) {
			chain.Flags |= ChainLengthMismatch
		}
		if chain.Anomalous() {
			c.log.Warnf("file %s %q: %v, %d of %d blocks", entry.ID(), entry.Filename, chain.Flags, len(chain.Blocks), entry.Length)
		}

		payload, err := c.store.ReadBlocks(chain.Blocks)
		if err != nil {
			// Walk only returns blocks inside of the data area.
			c.log.Errorf("file %s %q: %v", entry.ID(), entry.Filename, err)
			continue
		}

		c.live = append(c.live, &File{
			format:   c.format,
			encoding: c.sys.header.Encoding,
			entry:    entry,
			chain:    chain,
			payload:  payload,
		})
	}

	used := c.UsedBlockMap()
	for _, f := range c.lost {
		for _, b := range f.chain.Blocks {
			if used[b] > 0 {
				c.log.Warnf("%v overlaps with a live file at block %d", f, b)
				break
			}
		}
	}
}

// Format returns the card format.
func (c *Card) Format() Format {
	return c.format
}

// Geometry returns the block layout.
func (c *Card) Geometry() Geometry {
	return c.sys.geometry
}

// Header returns the card wide information.
func (c *Card) Header() Header {
	return c.sys.header
}

// Encoding returns the text encoding of the card.
func (c *Card) Encoding() Encoding {
	return c.sys.header.Encoding
}

// Store returns the block access to the image.
func (c *Card) Store() *BlockStore {
	return c.store
}

// HeaderChecksum returns the stored and computed header checksum.
// A VMU has no header checksum, both values are checksum.None.
func (c *Card) HeaderChecksum() (stored, computed checksum.Value) {
	if c.format != FormatGCN {
		return checksum.Value{}, checksum.Value{}
	}
	return c.sys.headerStored, c.sys.headerComputed
}

// DirCopies returns the status of all directory copies.
func (c *Card) DirCopies() []CopyStatus {
	return copyStatus(c.sys.dirs)
}

// BatCopies returns the status of all block table copies.
func (c *Card) BatCopies() []CopyStatus {
	return copyStatus(c.sys.bats)
}

func copyStatus[T any](copies []TableCopy[T]) []CopyStatus {
	status := make([]CopyStatus, len(copies))
	for i, cp := range copies {
		status[i] = cp.Status()
	}
	return status
}

// ActiveDatIdx returns the index of the active directory copy.
func (c *Card) ActiveDatIdx() int {
	return c.activeDat
}

// ActiveBatIdx returns the index of the active block table copy.
func (c *Card) ActiveBatIdx() int {
	return c.activeBat
}

// SetActiveDatIdx makes idx the active directory copy, even if it is
// invalid, and rebuilds the live files.
func (c *Card) SetActiveDatIdx(idx int) error {
	if idx < 0 || idx >= len(c.sys.dirs) {
		return checkpoint.Wrap(fmt.Errorf("directory copy %d of %d", idx, len(c.sys.dirs)), ErrInvalidIndex)
	}
	if !c.sys.dirs[idx].Valid {
		c.log.Warnf("activating invalid directory copy %d", idx)
	}
	c.activeDat = idx
	c.rebuild()
	return nil
}

// SetActiveBatIdx makes idx the active block table copy, even if it is
// invalid, and rebuilds the live files.
func (c *Card) SetActiveBatIdx(idx int) error {
	if idx < 0 || idx >= len(c.sys.bats) {
		return checkpoint.Wrap(fmt.Errorf("block table copy %d of %d", idx, len(c.sys.bats)), ErrInvalidIndex)
	}
	if !c.sys.bats[idx].Valid {
		c.log.Warnf("activating invalid block table copy %d", idx)
	}
	c.activeBat = idx
	c.rebuild()
	return nil
}

// BlockTable returns the active block allocation table.
func (c *Card) BlockTable() *BlockTable {
	return c.sys.bats[c.activeBat].Data
}

// Files returns the live files followed by the recovered ones.
func (c *Card) Files() []*File {
	files := make([]*File, 0, len(c.live)+len(c.lost))
	files = append(files, c.live...)
	return append(files, c.lost...)
}

// LiveFiles returns the files referenced by the active directory.
func (c *Card) LiveFiles() []*File {
	return append([]*File(nil), c.live...)
}

// LostFiles returns the recovered files.
func (c *Card) LostFiles() []*File {
	return append([]*File(nil), c.lost...)
}

// UsedBlockMap returns for each block the number of live files using it.
func (c *Card) UsedBlockMap() []uint8 {
	return blockMap(c.sys.geometry.NumBlocks, c.live)
}

// ClaimedBlockMap returns for each block the number of live and recovered
// files using it.
func (c *Card) ClaimedBlockMap() []uint8 {
	return blockMap(c.sys.geometry.NumBlocks, c.live, c.lost)
}

func blockMap(numBlocks int, lists ...[]*File) []uint8 {
	m := make([]uint8, numBlocks)
	for _, files := range lists {
		for _, f := range files {
			for _, b := range f.chain.Blocks {
				if m[b] < 0xFF {
					m[b]++
				}
			}
		}
	}
	return m
}

// FreeBlocks returns the number of data blocks no file claims.
func (c *Card) FreeBlocks() int {
	g := c.sys.geometry
	claimed := c.ClaimedBlockMap()

	free := 0
	for b := g.FirstData; b < g.DataEnd; b++ {
		if claimed[b] == 0 {
			free++
		}
	}
	return free
}

// AddLostFile adds a recovered file. If fatEntries is nil the file uses the
// contiguous blocks given by the start block and length of entry.
// Chains which leave the data area or use a block claimed by another file
// are rejected.
func (c *Card) AddLostFile(entry DirEntry, fatEntries []uint16) (*File, error) {
	return c.addLostFile(entry, fatEntries, nil)
}

func (c *Card) addLostFile(entry DirEntry, fatEntries []uint16, info *LostInfo) (*File, error) {
	g := c.sys.geometry

	var chain Chain
	if fatEntries == nil {
		chain = Contiguous(entry.Block, int(entry.Length), g)
	} else {
		chain = CheckChain(fatEntries, g)
		if len(chain.Blocks) < len(fatEntries) && chain.Flags&ChainCycle != 0 {
			return nil, checkpoint.Wrap(fmt.Errorf("block %d listed twice", fatEntries[len(chain.Blocks)]), ErrBlockOverlap)
		}
	}

	if chain.Flags&(ChainOutOfRange|ChainOverlength) != 0 {
		return nil, checkpoint.Wrap(fmt.Errorf("file %s %q: %v", entry.ID(), entry.Filename, chain.Flags), ErrBlockRange)
	}
	if len(chain.Blocks) == 0 {
		return nil, checkpoint.Wrap(fmt.Errorf("file %s %q", entry.ID(), entry.Filename), ErrEmptyChain)
	}

	claimed := c.ClaimedBlockMap()
	for _, b := range chain.Blocks {
		if claimed[b] > 0 {
			return nil, checkpoint.Wrap(fmt.Errorf("file %s %q: block %d", entry.ID(), entry.Filename, b), ErrBlockOverlap)
		}
	}

	payload, err := c.store.ReadBlocks(chain.Blocks)
	if err != nil {
		return nil, err
	}

	entry.Block = chain.Blocks[0]
	entry.Length = uint16(len(chain.Blocks))

	f := &File{
		format:    c.format,
		encoding:  c.sys.header.Encoding,
		entry:     entry,
		chain:     chain,
		payload:   payload,
		recovered: true,
		lost:      info,
	}
	c.lost = append(c.lost, f)
	c.log.Infof("recovered %v", f)

	return f, nil
}

// AddLostFiles adds the results of a scan. Rejected results are logged and
// skipped, the accepted files are returned.
func (c *Card) AddLostFiles(results []SearchData) []*File {
	var added []*File
	for _, sd := range results {
		info := &LostInfo{
			Descriptor: sd.Descriptor,
			GameDesc:   sd.GameDesc,
			FileDesc:   sd.FileDesc,
			GameName:   sd.GameName,
			FileInfo:   sd.FileInfo,
			FatSource:  sd.FatSource,
			Checksum:   sd.Checksum,
		}

		f, err := c.addLostFile(sd.Entry, sd.FatEntries, info)
		if err != nil {
			c.log.Debugf("rejected %s %q at block %d: %v", sd.Entry.ID(), sd.Entry.Filename, sd.Entry.Block, err)
			continue
		}
		added = append(added, f)
	}
	return added
}

// Scan searches the unused blocks for files known by db.
// The card is not modified, pass the results to AddLostFiles.
func (c *Card) Scan(ctx context.Context, db *filedb.Database, opts ...ScanOption) ([]SearchData, error) {
	return NewScanner(c, db, opts...).Scan(ctx)
}

// Fs returns a read only filesystem with all current files in its root.
func (c *Card) Fs() *Fs {
	return newFs(c.Files())
}
