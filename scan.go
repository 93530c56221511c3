package mcrecover

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/aligator/mcrecover/checkpoint"
	"github.com/aligator/mcrecover/filedb"
)

// ScanState is the state of a Scanner.
type ScanState int32

const (
	ScanIdle ScanState = iota
	ScanScanning
	ScanDone
	ScanCancelled
)

func (s ScanState) String() string {
	switch s {
	case ScanScanning:
		return "scanning"
	case ScanDone:
		return "done"
	case ScanCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// SearchData is a candidate lost file found by a scan.
type SearchData struct {
	// Entry is the synthesized directory entry. Block and Length describe
	// the inferred chain.
	Entry      DirEntry
	FatEntries []uint16
	FatSource  FatSource

	// GameDesc and FileDesc are the comment found on the card, GameName and
	// FileInfo the descriptions rendered from the descriptor templates.
	GameDesc string
	FileDesc string
	GameName string
	FileInfo string
	Captures filedb.Captures
	Checksum ChecksumStatus

	Descriptor *filedb.Descriptor
}

// ScanOption configures a Scanner.
type ScanOption func(s *Scanner)

// WithRegion sets the region character appended to three character game
// codes of the database, 'E' by default.
func WithRegion(region byte) ScanOption {
	return func(s *Scanner) {
		s.region = region
	}
}

// WithRequireValidChecksum drops candidates whose payload does not verify
// against the checksums of its descriptor.
func WithRequireValidChecksum(require bool) ScanOption {
	return func(s *Scanner) {
		s.requireChecksum = require
	}
}

// WithProgress is called after every scanned block with the number of
// scanned and total data blocks.
func WithProgress(progress func(done, total int)) ScanOption {
	return func(s *Scanner) {
		s.progress = progress
	}
}

// Scanner searches the unclaimed blocks of a card for files described by a
// signature database. It only reads from the card.
type Scanner struct {
	card        *Card
	descriptors []*filedb.Descriptor
	log         Logger

	region          byte
	requireChecksum bool
	progress        func(done, total int)

	state atomic.Int32
}

// NewScanner creates a scanner using the descriptors of db which match the
// card format.
func NewScanner(card *Card, db *filedb.Database, opts ...ScanOption) *Scanner {
	s := &Scanner{
		card:   card,
		log:    card.log,
		region: 'E',
	}
	if db != nil {
		s.descriptors = db.ForFormat(card.format.String())
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state. It may be called from other goroutines.
func (s *Scanner) State() ScanState {
	return ScanState(s.state.Load())
}

// Scan runs a full pass over the data area.
// Every unclaimed block is matched against all descriptors, the matches are
// then accepted by descriptor priority and start block, dropping each match
// which overlaps with an already accepted one.
// The context is checked between blocks, a cancelled scan returns the
// context error and no results.
func (s *Scanner) Scan(ctx context.Context) ([]SearchData, error) {
	if ScanState(s.state.Swap(int32(ScanScanning))) == ScanScanning {
		return nil, checkpoint.From(ErrScanRunning)
	}

	g := s.card.sys.geometry
	claimed := s.card.ClaimedBlockMap()

	var candidates []SearchData
	total := g.DataBlocks()
	for b := g.FirstData; b < g.DataEnd; b++ {
		if err := ctx.Err(); err != nil {
			s.state.Store(int32(ScanCancelled))
			return nil, checkpoint.From(err)
		}

		if claimed[b] == 0 {
			for _, d := range s.descriptors {
				if sd, ok := s.check(uint16(b), d, claimed); ok {
					candidates = append(candidates, sd)
				}
			}
		}

		if s.progress != nil {
			s.progress(b-g.FirstData+1, total)
		}
	}

	results := s.accept(candidates)
	s.state.Store(int32(ScanDone))
	s.log.Infof("scan done: %d candidates, %d accepted", len(candidates), len(results))
	return results, nil
}

// check infers the chain of descriptor d starting at block and matches the
// comment found in that chain.
func (s *Scanner) check(block uint16, d *filedb.Descriptor, claimed []uint8) (SearchData, bool) {
	c := s.card
	gameLen, fileLen := c.format.commentSizes()

	blocks, source, ok := s.inferChain(block, int(d.DirEntry.Length), claimed)
	if !ok {
		return SearchData{}, false
	}

	// The comment is read through the chain, it may lie beyond the first block.
	raw := make([]byte, gameLen+fileLen)
	if n, _ := c.store.ReadChainAt(raw, blocks, int64(d.Address)); n < len(raw) {
		return SearchData{}, false
	}
	gameDesc, fileDesc := readComment(raw, 0, c.format, c.sys.header.Encoding)

	captures, ok := d.Match(gameDesc, fileDesc)
	if !ok {
		return SearchData{}, false
	}

	payload, err := c.store.ReadBlocks(blocks)
	if err != nil {
		return SearchData{}, false
	}

	status := ChecksumUnknown
	if len(d.Checksums) > 0 {
		status = ChecksumValid
		for _, def := range d.Checksums {
			if !def.Verify(payload) {
				status = ChecksumInvalid
				break
			}
		}
	}
	if status == ChecksumInvalid && s.requireChecksum {
		s.log.Debugf("block %d matches %v but the checksum is invalid", block, d)
		return SearchData{}, false
	}

	gameCode := d.GameCode
	if len(gameCode) == 3 {
		gameCode += string(s.region)
	}

	tmpl := d.DirEntry
	entry := DirEntry{
		GameCode:     gameCode,
		Company:      d.Company,
		BannerFormat: tmpl.BannerFormat,
		Filename:     d.Filename(captures),
		IconAddr:     tmpl.IconAddr,
		IconFormat:   tmpl.IconFormat,
		IconSpeed:    tmpl.IconSpeed,
		Permission:   tmpl.Permission,
		Block:        blocks[0],
		Length:       uint16(len(blocks)),
		CommentAddr:  d.Address,
	}
	if c.format == FormatVMU {
		entry.FileType = vmuFileData
	}

	return SearchData{
		Entry:      entry,
		FatEntries: blocks,
		FatSource:  source,
		GameDesc:   gameDesc,
		FileDesc:   fileDesc,
		GameName:   d.Render(d.GameName, captures),
		FileInfo:   d.Render(d.FileInfo, captures),
		Captures:   captures,
		Checksum:   status,
		Descriptor: d,
	}, true
}

// inferChain prefers the chain of the active block table if its walk from
// start is clean, ends exactly after length blocks and does not touch
// claimed blocks. Otherwise the contiguous blocks starting at start are used.
func (s *Scanner) inferChain(start uint16, length int, claimed []uint8) ([]uint16, FatSource, bool) {
	g := s.card.sys.geometry
	free := func(blocks []uint16) bool {
		for _, b := range blocks {
			if claimed[b] > 0 {
				return false
			}
		}
		return true
	}

	if bat := s.card.BlockTable(); bat != nil && !bat.Entry(int(start)).IsFree() {
		walked := Walk(start, bat, g)
		if !walked.Anomalous() && len(walked.Blocks) == length && free(walked.Blocks) {
			return walked.Blocks, FatBAT, true
		}
	}

	contiguous := Contiguous(start, length, g)
	if contiguous.Anomalous() || len(contiguous.Blocks) != length || !free(contiguous.Blocks) {
		return nil, FatContiguous, false
	}
	return contiguous.Blocks, FatContiguous, true
}

// accept orders the candidates and drops the ones overlapping an earlier
// candidate.
func (s *Scanner) accept(candidates []SearchData) []SearchData {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Descriptor.Priority != b.Descriptor.Priority {
			return a.Descriptor.Priority < b.Descriptor.Priority
		}
		return a.Entry.Block < b.Entry.Block
	})

	taken := make([]bool, s.card.sys.geometry.NumBlocks)
	var results []SearchData
next:
	for _, sd := range candidates {
		for _, b := range sd.FatEntries {
			if taken[b] {
				s.log.Debugf("dropped %v at block %d: block %d is taken", sd.Descriptor, sd.Entry.Block, b)
				continue next
			}
		}
		for _, b := range sd.FatEntries {
			taken[b] = true
		}
		results = append(results, sd)
	}
	return results
}
