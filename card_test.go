package mcrecover

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/golang/mock/gomock"
)

func TestNew(t *testing.T) {
	b := newGcnBuilder(t, 64)
	zelda := b.addFile(testEntry("GALE", "01", "gczelda"), []uint16{5, 6}, "Zelda: The Wind Waker", "File A")
	sonic := b.addFile(testEntry("GXSE", "8P", "SONICADV_SYS"), []uint16{9, 7, 8}, "SONIC ADVENTURE", "System")
	b.write([2]uint16{1, 1}, [2]uint16{1, 1})

	c := b.open()

	if c.Format() != FormatGCN {
		t.Errorf("Card.Format() = %v, want %v", c.Format(), FormatGCN)
	}
	files := c.LiveFiles()
	if len(files) != 2 {
		t.Fatalf("Card.LiveFiles() = %v, want 2 files", files)
	}
	if len(c.LostFiles()) != 0 || len(c.Files()) != 2 {
		t.Errorf("Card.Files() = %v, want only the live files", c.Files())
	}

	tests := []struct {
		name       string
		file       *File
		wantName   string
		wantBlocks []uint16
		wantData   []byte
	}{
		{
			name:       "contiguous file",
			file:       files[0],
			wantName:   "gczelda",
			wantBlocks: []uint16{5, 6},
			wantData:   zelda,
		},
		{
			name:       "fragmented file",
			file:       files[1],
			wantName:   "SONICADV_SYS",
			wantBlocks: []uint16{9, 7, 8},
			wantData:   sonic,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.file.Filename(); got != tt.wantName {
				t.Errorf("File.Filename() = %v, want %v", got, tt.wantName)
			}
			if got := tt.file.Blocks(); !reflect.DeepEqual(got, tt.wantBlocks) {
				t.Errorf("File.Blocks() = %v, want %v", got, tt.wantBlocks)
			}
			if got := tt.file.LoadFileData(); !bytes.Equal(got, tt.wantData) {
				t.Errorf("File.LoadFileData() differs from the written payload")
			}
			if tt.file.Flags() != 0 || tt.file.Recovered() {
				t.Errorf("File flags = %v, recovered = %v, want a clean live file", tt.file.Flags(), tt.file.Recovered())
			}
			if !tt.file.Entry().Modified.Equal(testTime) {
				t.Errorf("File.Entry().Modified = %v, want %v", tt.file.Entry().Modified, testTime)
			}
		})
	}
}

func TestCard_ChainRoundTrip(t *testing.T) {
	b := newGcnBuilder(t, 64)
	b.addFile(testEntry("GALE", "01", "gczelda"), []uint16{12, 5, 30, 6}, "", "")
	b.write([2]uint16{0, 0}, [2]uint16{0, 0})
	c := b.open()

	f := c.LiveFiles()[0]
	walked := Walk(f.Blocks()[0], c.BlockTable(), c.Geometry())
	if !reflect.DeepEqual(walked.Blocks, f.Blocks()) {
		t.Errorf("Walk() = %v, want %v", walked.Blocks, f.Blocks())
	}
	checked := CheckChain(f.Blocks(), c.Geometry())
	if !reflect.DeepEqual(checked.Blocks, f.Blocks()) || checked.Anomalous() {
		t.Errorf("CheckChain() = %v, want %v without flags", checked, f.Blocks())
	}
}

func TestNew_CopySelection(t *testing.T) {
	tests := []struct {
		name        string
		dirCounters [2]uint16
		batCounters [2]uint16
		corrupt     []int
		wantDat     int
		wantBat     int
		wantErr     error
	}{
		{
			name:    "equal counters select copy 0",
			wantDat: 0,
			wantBat: 0,
		},
		{
			name:        "higher counter wins",
			dirCounters: [2]uint16{3, 4},
			batCounters: [2]uint16{9, 2},
			wantDat:     1,
			wantBat:     0,
		},
		{
			name:        "corrupt copy loses against the lower counter",
			dirCounters: [2]uint16{7, 1},
			batCounters: [2]uint16{1, 7},
			corrupt:     []int{gcnDirBlock, gcnBatBlock + 1},
			wantDat:     1,
			wantBat:     0,
		},
		{
			name:    "both directory copies corrupt",
			corrupt: []int{gcnDirBlock, gcnDirBlock + 1},
			wantErr: ErrCorruptDirectory,
		},
		{
			name:    "both block table copies corrupt",
			corrupt: []int{gcnBatBlock, gcnBatBlock + 1},
			wantErr: ErrCorruptBlockTable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newGcnBuilder(t, 64)
			b.addFile(testEntry("GALE", "01", "gczelda"), []uint16{5}, "", "")
			image := b.write(tt.dirCounters, tt.batCounters)
			for _, blk := range tt.corrupt {
				b.corrupt(blk)
			}

			c, err := New(image)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, ErrBothCopiesInvalid) {
					t.Errorf("New() error = %v, want it to wrap %v", err, ErrBothCopiesInvalid)
				}
				return
			}

			if c.ActiveDatIdx() != tt.wantDat || c.ActiveBatIdx() != tt.wantBat {
				t.Errorf("active copies = %d/%d, want %d/%d", c.ActiveDatIdx(), c.ActiveBatIdx(), tt.wantDat, tt.wantBat)
			}
			for _, blk := range tt.corrupt {
				var status CopyStatus
				if blk < gcnBatBlock {
					status = c.DirCopies()[blk-gcnDirBlock]
				} else {
					status = c.BatCopies()[blk-gcnBatBlock]
				}
				if status.Valid || status.Reason == "" || status.Stored == status.Computed {
					t.Errorf("status of block %d = %+v, want an invalid copy", blk, status)
				}
			}

			alg := FormatGCN.TableAlgorithm().Name()
			for _, status := range append(c.DirCopies(), c.BatCopies()...) {
				if status.Stored.Algorithm != alg || status.Computed.Algorithm != alg {
					t.Errorf("copy %d checked with %v/%v, want %v", status.Index, status.Stored, status.Computed, alg)
				}
			}
		})
	}
}

func TestNew_HeaderChecksumMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b := newGcnBuilder(t, 64)
	image := b.write([2]uint16{}, [2]uint16{})
	image[0x20] ^= 0xFF

	log := NewMockLogger(ctrl)
	log.EXPECT().Warnf("header checksum mismatch: stored %v, computed %v", gomock.Any(), gomock.Any()).Times(1)
	log.EXPECT().Debugf(gomock.Any(), gomock.Any()).AnyTimes()

	c, err := New(image, WithLogger(log))
	if err != nil {
		t.Fatalf("New() error = %v, want the card to open", err)
	}
	stored, computed := c.HeaderChecksum()
	if stored == computed {
		t.Errorf("Card.HeaderChecksum() = %v, %v, want a mismatch", stored, computed)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		image   []byte
		opts    []Option
		wantErr error
	}{
		{
			name:    "unknown size",
			image:   make([]byte, 1000),
			wantErr: ErrUnknownFormat,
		},
		{
			name:    "forced VMU without root block",
			image:   make([]byte, vmuNumBlocks*vmuBlockSize),
			opts:    []Option{WithFormat(FormatVMU)},
			wantErr: ErrInvalidImage,
		},
		{
			name:    "forced GameCube with partial block",
			image:   make([]byte, gcnBlockSize*5+1),
			opts:    []Option{WithFormat(FormatGCN)},
			wantErr: ErrInvalidImage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.image, tt.opts...); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCard_LengthMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b := newGcnBuilder(t, 64)
	b.addFile(testEntry("GALE", "01", "gczelda"), []uint16{5, 6}, "", "")
	b.dir.Entries[0].Length = 3
	b.write([2]uint16{}, [2]uint16{})

	log := NewMockLogger(ctrl)
	log.EXPECT().Warnf("file %s %q: %v, %d of %d blocks", "GALE01", "gczelda", ChainLengthMismatch, 2, uint16(3))
	log.EXPECT().Debugf(gomock.Any(), gomock.Any()).AnyTimes()

	c := b.open(WithLogger(log))
	if f := c.LiveFiles()[0]; f.Flags() != ChainLengthMismatch {
		t.Errorf("File.Flags() = %v, want %v", f.Flags(), ChainLengthMismatch)
	}
}

func TestCard_SetActiveDatIdx(t *testing.T) {
	b := newGcnBuilder(t, 64)
	b.addFile(testEntry("GALE", "01", "gczelda"), []uint16{5}, "", "")
	b.addFile(testEntry("GXSE", "8P", "SONICADV_SYS"), []uint16{6}, "", "")
	b.write([2]uint16{2, 1}, [2]uint16{0, 0})
	putGcnDirTable(b.block(gcnDirBlock+1), &DirTable{Entries: b.dir.Entries[:1], Counter: 1}, EncodingANSI)

	c := b.open()
	if c.ActiveDatIdx() != 0 || len(c.LiveFiles()) != 2 {
		t.Fatalf("active directory %d with %d files, want 0 with 2", c.ActiveDatIdx(), len(c.LiveFiles()))
	}

	lost, err := c.AddLostFile(testEntry("GMSE", "01", "super_mario_sunshine"), []uint16{10, 11})
	if err != nil {
		t.Fatalf("Card.AddLostFile() error = %v", err)
	}

	if err := c.SetActiveDatIdx(1); err != nil {
		t.Fatalf("Card.SetActiveDatIdx() error = %v", err)
	}
	if got := len(c.LiveFiles()); got != 1 {
		t.Errorf("Card.LiveFiles() has %d files, want 1", got)
	}
	if got := c.LostFiles(); len(got) != 1 || got[0] != lost {
		t.Errorf("Card.LostFiles() = %v, want the recovered file to survive", got)
	}
	if got := c.UsedBlockMap()[6]; got != 0 {
		t.Errorf("Card.UsedBlockMap()[6] = %d, want 0 after switching", got)
	}

	for _, idx := range []int{-1, 2} {
		if err := c.SetActiveDatIdx(idx); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("Card.SetActiveDatIdx(%d) error = %v, want %v", idx, err, ErrInvalidIndex)
		}
		if err := c.SetActiveBatIdx(idx); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("Card.SetActiveBatIdx(%d) error = %v, want %v", idx, err, ErrInvalidIndex)
		}
	}
	if c.ActiveDatIdx() != 1 {
		t.Errorf("Card.ActiveDatIdx() = %d, want 1 after failed switches", c.ActiveDatIdx())
	}
}

func TestCard_SetActiveBatIdxForcesInvalidCopy(t *testing.T) {
	b := newGcnBuilder(t, 64)
	b.addFile(testEntry("GALE", "01", "gczelda"), []uint16{5, 6}, "", "")
	b.write([2]uint16{}, [2]uint16{0, 0})

	// The second copy still describes a formatted card.
	putGcnBat(b.block(gcnBatBlock+1), NewBlockTable(Geometry{BlockSize: gcnBlockSize, NumBlocks: 64, FirstData: 5, DataEnd: 64}))
	b.corrupt(gcnBatBlock + 1)

	c := b.open()
	if c.ActiveBatIdx() != 0 {
		t.Fatalf("Card.ActiveBatIdx() = %d, want 0", c.ActiveBatIdx())
	}
	if err := c.SetActiveBatIdx(1); err != nil {
		t.Fatalf("Card.SetActiveBatIdx() error = %v", err)
	}

	f := c.LiveFiles()[0]
	if f.Flags()&ChainFree == 0 || f.Flags()&ChainLengthMismatch == 0 {
		t.Errorf("File.Flags() = %v, want free block and length mismatch", f.Flags())
	}
	if !reflect.DeepEqual(f.Blocks(), []uint16{5}) {
		t.Errorf("File.Blocks() = %v, want the truncated chain [5]", f.Blocks())
	}
}

func TestCard_AddLostFile(t *testing.T) {
	type args struct {
		entry      DirEntry
		fatEntries []uint16
	}
	tests := []struct {
		name       string
		args       args
		wantBlocks []uint16
		wantErr    error
	}{
		{
			name:       "explicit chain",
			args:       args{entry: testEntry("GMSE", "01", "a"), fatEntries: []uint16{20, 10}},
			wantBlocks: []uint16{20, 10},
		},
		{
			name: "contiguous chain",
			args: args{entry: func() DirEntry {
				e := testEntry("GMSE", "01", "a")
				e.Block, e.Length = 30, 3
				return e
			}()},
			wantBlocks: []uint16{30, 31, 32},
		},
		{
			name:    "overlapping a live file",
			args:    args{entry: testEntry("GMSE", "01", "a"), fatEntries: []uint16{11, 5}},
			wantErr: ErrBlockOverlap,
		},
		{
			name:    "block outside of the card",
			args:    args{entry: testEntry("GMSE", "01", "a"), fatEntries: []uint16{63, 64}},
			wantErr: ErrBlockRange,
		},
		{
			name:    "system block",
			args:    args{entry: testEntry("GMSE", "01", "a"), fatEntries: []uint16{3}},
			wantErr: ErrBlockRange,
		},
		{
			name:    "block listed twice",
			args:    args{entry: testEntry("GMSE", "01", "a"), fatEntries: []uint16{40, 41, 40}},
			wantErr: ErrBlockOverlap,
		},
		{
			name: "contiguous chain beyond the end",
			args: args{entry: func() DirEntry {
				e := testEntry("GMSE", "01", "a")
				e.Block, e.Length = 62, 3
				return e
			}()},
			wantErr: ErrBlockRange,
		},
		{
			name:    "empty chain",
			args:    args{entry: testEntry("GMSE", "01", "a"), fatEntries: []uint16{}},
			wantErr: ErrEmptyChain,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newGcnBuilder(t, 64)
			b.addFile(testEntry("GALE", "01", "gczelda"), []uint16{5, 6}, "", "")
			b.write([2]uint16{}, [2]uint16{})
			c := b.open()

			got, err := c.AddLostFile(tt.args.entry, tt.args.fatEntries)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Card.AddLostFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if got != nil || len(c.LostFiles()) != 0 {
					t.Errorf("Card.AddLostFile() = %v, want no file", got)
				}
				return
			}

			if !reflect.DeepEqual(got.Blocks(), tt.wantBlocks) {
				t.Errorf("File.Blocks() = %v, want %v", got.Blocks(), tt.wantBlocks)
			}
			if !got.Recovered() {
				t.Errorf("File.Recovered() = false, want true")
			}
			if e := got.Entry(); e.Block != tt.wantBlocks[0] || int(e.Length) != len(tt.wantBlocks) {
				t.Errorf("File.Entry() block %d length %d, want %d and %d", e.Block, e.Length, tt.wantBlocks[0], len(tt.wantBlocks))
			}
			want, _ := c.Store().ReadBlocks(tt.wantBlocks)
			if !bytes.Equal(got.LoadFileData(), want) {
				t.Errorf("File.LoadFileData() does not match the blocks")
			}
		})
	}
}

func TestCard_AddLostFileTwiceWithOverlap(t *testing.T) {
	b := newGcnBuilder(t, 64)
	b.write([2]uint16{}, [2]uint16{})
	c := b.open()

	if _, err := c.AddLostFile(testEntry("GMSE", "01", "first"), []uint16{10, 11, 12}); err != nil {
		t.Fatalf("Card.AddLostFile() error = %v", err)
	}
	if _, err := c.AddLostFile(testEntry("GMSE", "01", "second"), []uint16{20, 12}); !errors.Is(err, ErrBlockOverlap) {
		t.Fatalf("Card.AddLostFile() error = %v, want %v", err, ErrBlockOverlap)
	}

	if got := len(c.Files()); got != 1 {
		t.Errorf("Card.Files() has %d files, want 1", got)
	}
	if got := c.UsedBlockMap()[12]; got != 0 {
		t.Errorf("Card.UsedBlockMap()[12] = %d, want 0 for recovered files", got)
	}
	if got := c.ClaimedBlockMap()[12]; got != 1 {
		t.Errorf("Card.ClaimedBlockMap()[12] = %d, want 1", got)
	}
	if got, want := c.FreeBlocks(), 59-3; got != want {
		t.Errorf("Card.FreeBlocks() = %d, want %d", got, want)
	}
}

func TestCard_AddLostFiles(t *testing.T) {
	b := newGcnBuilder(t, 64)
	b.write([2]uint16{}, [2]uint16{})
	c := b.open()

	results := []SearchData{
		{Entry: testEntry("GMSE", "01", "a"), FatEntries: []uint16{10, 11}, FatSource: FatBAT, Checksum: ChecksumValid},
		{Entry: testEntry("GMSE", "01", "b"), FatEntries: []uint16{11}},
		{Entry: testEntry("GMSE", "01", "c"), FatEntries: []uint16{70}},
		{Entry: testEntry("GMSE", "01", "d"), FatEntries: []uint16{12}, GameDesc: "Super Mario Sunshine"},
	}

	added := c.AddLostFiles(results)
	if len(added) != 2 {
		t.Fatalf("Card.AddLostFiles() = %v, want 2 files", added)
	}
	if added[0].Filename() != "a" || added[1].Filename() != "d" {
		t.Errorf("Card.AddLostFiles() = %v, want a and d", added)
	}
	if info := added[0].Lost(); info == nil || info.FatSource != FatBAT || info.Checksum != ChecksumValid {
		t.Errorf("File.Lost() = %+v, want the scan details", info)
	}
	if info := added[1].Lost(); info.GameDesc != "Super Mario Sunshine" {
		t.Errorf("File.Lost().GameDesc = %q", info.GameDesc)
	}
	if files := c.Files(); len(files) != 2 || files[0] != added[0] {
		t.Errorf("Card.Files() = %v, want the recovered files", files)
	}
}
