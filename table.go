package mcrecover

import (
	"fmt"
	"time"

	"github.com/aligator/mcrecover/checkpoint"
	"github.com/aligator/mcrecover/checksum"
)

// Geometry describes the block layout of a card.
type Geometry struct {
	BlockSize int
	NumBlocks int

	// FirstData is the first block a file may use and DataEnd the first block
	// after the data area.
	FirstData int
	DataEnd   int
}

// InData reports if block lies inside of the data area.
func (g Geometry) InData(block int) bool {
	return block >= g.FirstData && block < g.DataEnd
}

// DataBlocks returns the size of the data area in blocks.
func (g Geometry) DataBlocks() int {
	return g.DataEnd - g.FirstData
}

// BatEntry is a normalized block allocation table entry. Values below
// 0x10000 are the number of the next block of a chain.
type BatEntry uint32

const (
	BatFree BatEntry = 0x10000 + iota
	BatLast
	BatReserved
)

// NextBlock returns the entry pointing to block n.
func NextBlock(n uint16) BatEntry {
	return BatEntry(n)
}

// IsFree returns true if the block is not allocated.
func (e BatEntry) IsFree() bool {
	return e == BatFree
}

// IsLast returns true if the block is the last one of a file.
func (e BatEntry) IsLast() bool {
	return e == BatLast
}

// IsReserved returns true if the block belongs to the system area.
func (e BatEntry) IsReserved() bool {
	return e == BatReserved
}

// IsNext returns true if the entry points to a following block.
func (e BatEntry) IsNext() bool {
	return e < 0x10000
}

// Next returns the following block. Only valid if IsNext() is true.
func (e BatEntry) Next() uint16 {
	return uint16(e)
}

func (e BatEntry) String() string {
	switch e {
	case BatFree:
		return "free"
	case BatLast:
		return "last"
	case BatReserved:
		return "reserved"
	default:
		return fmt.Sprintf("next(%d)", e.Next())
	}
}

// BlockTable is one decoded copy of a block allocation table.
type BlockTable struct {
	// Entries holds one entry per block of the card.
	Entries    []BatEntry
	Counter    uint16
	FreeBlocks uint16
	LastAlloc  uint16
}

// NewBlockTable returns a table with every data block free and the system
// blocks reserved.
func NewBlockTable(g Geometry) *BlockTable {
	t := &BlockTable{
		Entries: make([]BatEntry, g.NumBlocks),
	}
	for i := range t.Entries {
		if g.InData(i) {
			t.Entries[i] = BatFree
		} else {
			t.Entries[i] = BatReserved
		}
	}
	t.FreeBlocks = uint16(g.DataBlocks())
	return t
}

// Entry returns the entry for block, out of range blocks are reserved.
func (t *BlockTable) Entry(block int) BatEntry {
	if block < 0 || block >= len(t.Entries) {
		return BatReserved
	}
	return t.Entries[block]
}

// Link allocates blocks as one chain, in order.
func (t *BlockTable) Link(blocks []uint16) {
	for i, b := range blocks {
		if int(b) >= len(t.Entries) {
			continue
		}
		if t.Entries[b].IsFree() && t.FreeBlocks > 0 {
			t.FreeBlocks--
		}
		if i == len(blocks)-1 {
			t.Entries[b] = BatLast
		} else {
			t.Entries[b] = NextBlock(blocks[i+1])
		}
		t.LastAlloc = b
	}
}

// DirEntry is one decoded directory entry.
//
// GameCube entries use every field but the VMU specific ones. VMU entries
// have no game code, company, icon or comment fields of their own, their
// header block is mapped onto CommentAddr.
type DirEntry struct {
	GameCode     string
	Company      string
	BannerFormat uint8
	Filename     string
	Modified     time.Time
	IconAddr     uint32
	IconFormat   uint16
	IconSpeed    uint16
	Permission   uint8
	CopyTimes    uint8
	Block        uint16
	Length       uint16
	CommentAddr  uint32

	// VMU only.
	FileType    uint8
	CopyProtect uint8
}

// ID returns game code and company, e.g. "GALE01".
func (e DirEntry) ID() string {
	return e.GameCode + e.Company
}

// DirTable is one decoded copy of a directory table.
type DirTable struct {
	// Entries holds the used slots in table order.
	Entries  []DirEntry
	Capacity int
	Counter  uint16
}

// TableCopy is one of the redundant on-card copies of a table.
// It is either valid, carrying the decoded data and its update counter, or
// invalid with a reason.
type TableCopy[T any] struct {
	Index   int
	Valid   bool
	Reason  string
	Data    T
	Counter uint16

	Stored   checksum.Value
	Computed checksum.Value
}

// CopyStatus is the display part of a TableCopy.
type CopyStatus struct {
	Index    int
	Valid    bool
	Reason   string
	Counter  uint16
	Stored   checksum.Value
	Computed checksum.Value
}

// Status returns the checksum and validity information of the copy.
func (c TableCopy[T]) Status() CopyStatus {
	return CopyStatus{
		Index:    c.Index,
		Valid:    c.Valid,
		Reason:   c.Reason,
		Counter:  c.Counter,
		Stored:   c.Stored,
		Computed: c.Computed,
	}
}

// SelectActive chooses the authoritative copy:
// a valid copy wins over an invalid one, between two valid copies the higher
// update counter wins and equal counters select the first copy.
// If no copy is valid ErrBothCopiesInvalid is returned.
func SelectActive[T any](copies []TableCopy[T]) (int, error) {
	active := -1
	for i, c := range copies {
		if !c.Valid {
			continue
		}
		if active < 0 || c.Counter > copies[active].Counter {
			active = i
		}
	}

	if active < 0 {
		return -1, checkpoint.From(ErrBothCopiesInvalid)
	}
	return active, nil
}
