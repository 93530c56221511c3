package mcrecover

import (
	"testing"
	"time"
)

var testTime = time.Date(2004, 3, 14, 15, 9, 26, 0, time.UTC)

// gcnBuilder creates GameCube images for tests.
type gcnBuilder struct {
	t     *testing.T
	image []byte
	dir   *DirTable
	bat   *BlockTable
}

func newGcnBuilder(t *testing.T, numBlocks int) *gcnBuilder {
	t.Helper()
	image, err := FormatImage(FormatGCN, numBlocks, EncodingANSI)
	if err != nil {
		t.Fatalf("FormatImage() error = %v", err)
	}

	g := Geometry{
		BlockSize: gcnBlockSize,
		NumBlocks: numBlocks,
		FirstData: gcnSystemBlocks,
		DataEnd:   numBlocks,
	}
	return &gcnBuilder{
		t:     t,
		image: image,
		dir:   &DirTable{Capacity: gcnMaxFiles},
		bat:   NewBlockTable(g),
	}
}

func (b *gcnBuilder) block(i int) []byte {
	return b.image[i*gcnBlockSize : (i+1)*gcnBlockSize]
}

// addFile writes a file with a generated payload and the given comment into
// blocks, links them in the block table and adds the directory entry.
// It returns the payload.
func (b *gcnBuilder) addFile(entry DirEntry, blocks []uint16, gameDesc, fileDesc string) []byte {
	payload := make([]byte, len(blocks)*gcnBlockSize)
	for i := range payload {
		payload[i] = byte(i*7 + int(blocks[0]))
	}
	copy(payload[entry.CommentAddr:], EncodingANSI.encode(gameDesc, 32))
	copy(payload[entry.CommentAddr+32:], EncodingANSI.encode(fileDesc, 32))

	for i, blk := range blocks {
		copy(b.block(int(blk)), payload[i*gcnBlockSize:(i+1)*gcnBlockSize])
	}
	b.bat.Link(blocks)

	entry.Block = blocks[0]
	entry.Length = uint16(len(blocks))
	b.dir.Entries = append(b.dir.Entries, entry)
	return payload
}

// write encodes the tables into both copies using the given update counters.
func (b *gcnBuilder) write(dirCounters, batCounters [2]uint16) []byte {
	for i := 0; i < 2; i++ {
		dir := *b.dir
		dir.Counter = dirCounters[i]
		putGcnDirTable(b.block(gcnDirBlock+i), &dir, EncodingANSI)

		bat := *b.bat
		bat.Counter = batCounters[i]
		putGcnBat(b.block(gcnBatBlock+i), &bat)
	}
	return b.image
}

// corrupt breaks the checksum of a system block without touching the
// first directory slots or block table entries in use by tests.
func (b *gcnBuilder) corrupt(block int) {
	b.block(block)[0x1000] ^= 0x5A
}

func (b *gcnBuilder) open(opts ...Option) *Card {
	b.t.Helper()
	c, err := New(append([]byte(nil), b.image...), opts...)
	if err != nil {
		b.t.Fatalf("New() error = %v", err)
	}
	return c
}

func testEntry(gameCode, company, filename string) DirEntry {
	return DirEntry{
		GameCode:     gameCode,
		Company:      company,
		Filename:     filename,
		BannerFormat: 1,
		Modified:     testTime,
		IconAddr:     0x40,
		Permission:   4,
		CommentAddr:  0,
	}
}

// vmuBuilder creates Dreamcast VMU images for tests.
type vmuBuilder struct {
	t       *testing.T
	image   []byte
	entries []DirEntry
	bat     *BlockTable
}

func newVmuBuilder(t *testing.T) *vmuBuilder {
	t.Helper()
	image, err := FormatImage(FormatVMU, vmuNumBlocks, EncodingSJIS)
	if err != nil {
		t.Fatalf("FormatImage() error = %v", err)
	}
	return &vmuBuilder{
		t:     t,
		image: image,
		bat:   NewBlockTable(Geometry{BlockSize: vmuBlockSize, NumBlocks: vmuNumBlocks, DataEnd: vmuUserBlocks}),
	}
}

func (b *vmuBuilder) block(i int) []byte {
	return b.image[i*vmuBlockSize : (i+1)*vmuBlockSize]
}

func (b *vmuBuilder) addFile(entry DirEntry, blocks []uint16, vmuDesc, dcDesc string) []byte {
	payload := make([]byte, len(blocks)*vmuBlockSize)
	for i := range payload {
		payload[i] = byte(i*3 + int(blocks[0]))
	}
	copy(payload[entry.CommentAddr:], EncodingSJIS.encode(vmuDesc, 16))
	copy(payload[entry.CommentAddr+16:], EncodingSJIS.encode(dcDesc, 32))

	for i, blk := range blocks {
		copy(b.block(int(blk)), payload[i*vmuBlockSize:(i+1)*vmuBlockSize])
	}
	b.bat.Link(blocks)

	entry.FileType = vmuFileData
	entry.Block = blocks[0]
	entry.Length = uint16(len(blocks))
	b.entries = append(b.entries, entry)
	return payload
}

func (b *vmuBuilder) write() []byte {
	putVmuFat(b.block(vmuFatBlock), b.bat)
	putVmuDir(func(i int) []byte { return b.block(vmuDirBlock - i) }, b.entries)
	return b.image
}

func (b *vmuBuilder) open(opts ...Option) *Card {
	b.t.Helper()
	c, err := New(append([]byte(nil), b.image...), opts...)
	if err != nil {
		b.t.Fatalf("New() error = %v", err)
	}
	return c
}
