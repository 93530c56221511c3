package mcrecover

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/aligator/mcrecover/checkpoint"
	"github.com/aligator/mcrecover/checksum"
)

// gcnChecksum protects the header. The tables use the algorithm of their
// tableCodec, which is the same on a GameCube card.
var gcnChecksum = checksum.AddInvDual16{Order: binary.BigEndian}

func readGcnSystem(store *BlockStore, codec tableCodec) (system, error) {
	var sys system
	sys.geometry = Geometry{
		BlockSize: gcnBlockSize,
		NumBlocks: store.NumBlocks(),
		FirstData: gcnSystemBlocks,
		DataEnd:   store.NumBlocks(),
	}

	block, err := store.Block(gcnHeaderBlock)
	if err != nil {
		return sys, err
	}

	var raw gcnHeader
	if err := binary.Read(bytes.NewReader(block), codec.order, &raw); err != nil {
		return sys, checkpoint.Wrap(err, ErrInvalidImage)
	}
	sys.header = Header{
		Serial:     raw.Serial,
		FormatTime: ParseOSTime(raw.FormatTime),
		SramBias:   raw.SramBias,
		SramLang:   raw.SramLang,
		DeviceID:   raw.DeviceID,
		SizeMbits:  raw.SizeMbits,
		Encoding:   Encoding(raw.Encoding),
	}
	sys.headerStored = gcnChecksum.Stored(block[gcnHeaderChecksumLen:])
	sys.headerComputed = gcnChecksum.Sum(block[:gcnHeaderChecksumLen])

	for i := 0; i < 2; i++ {
		block, err := store.Block(gcnDirBlock + i)
		if err != nil {
			return sys, err
		}
		sys.dirs = append(sys.dirs, decodeGcnDirCopy(i, block, sys.header.Encoding, codec))
	}

	for i := 0; i < 2; i++ {
		block, err := store.Block(gcnBatBlock + i)
		if err != nil {
			return sys, err
		}
		sys.bats = append(sys.bats, decodeGcnBatCopy(i, block, sys.geometry, codec))
	}

	return sys, nil
}

func decodeGcnDirCopy(idx int, block []byte, enc Encoding, codec tableCodec) TableCopy[*DirTable] {
	c := TableCopy[*DirTable]{
		Index:   idx,
		Counter: codec.order.Uint16(block[gcnDirCounterOffset:]),
	}
	c.Stored, c.Computed, c.Valid = codec.check(block[:gcnDirChecksumOffset], block[gcnDirChecksumOffset:])

	table := &DirTable{
		Capacity: gcnMaxFiles,
		Counter:  c.Counter,
	}
	for slot := 0; slot < gcnMaxFiles; slot++ {
		raw := block[slot*gcnDirEntrySize : (slot+1)*gcnDirEntrySize]
		if isEmptyGcnDirEntry(raw) {
			continue
		}
		entry, err := decodeGcnDirEntry(raw, codec.order, enc)
		if err != nil {
			c.Valid = false
			c.Reason = fmt.Sprintf("slot %d: %v", slot, err)
			return c
		}
		table.Entries = append(table.Entries, entry)
	}
	c.Data = table

	if !c.Valid {
		c.Reason = fmt.Sprintf("checksum mismatch: stored %v, computed %v", c.Stored, c.Computed)
	}
	return c
}

func decodeGcnBatCopy(idx int, block []byte, g Geometry, codec tableCodec) TableCopy[*BlockTable] {
	c := TableCopy[*BlockTable]{
		Index:   idx,
		Counter: codec.order.Uint16(block[gcnBatCounterOffset:]),
	}
	c.Stored, c.Computed, c.Valid = codec.check(block[gcnBatChecksumStart:], block[0:])

	table := &BlockTable{
		Entries:    make([]BatEntry, g.NumBlocks),
		Counter:    c.Counter,
		FreeBlocks: codec.order.Uint16(block[gcnBatFreeOffset:]),
		LastAlloc:  codec.order.Uint16(block[gcnBatLastAllocOffset:]),
	}
	for i := range table.Entries {
		offset := gcnBatEntryOffset + 2*(i-gcnSystemBlocks)
		if !g.InData(i) || offset+2 > len(block) {
			table.Entries[i] = BatReserved
			continue
		}

		switch v := codec.order.Uint16(block[offset:]); v {
		case gcnBatFree:
			table.Entries[i] = BatFree
		case gcnBatLast:
			table.Entries[i] = BatLast
		default:
			table.Entries[i] = NextBlock(v)
		}
	}
	c.Data = table

	if !c.Valid {
		c.Reason = fmt.Sprintf("checksum mismatch: stored %v, computed %v", c.Stored, c.Computed)
	}
	return c
}

// isEmptyGcnDirEntry reports if the game code and company are unset.
// Formatted slots hold 0xFF, wiped ones often 0x00.
func isEmptyGcnDirEntry(raw []byte) bool {
	ff, zero := true, true
	for _, b := range raw[:6] {
		ff = ff && b == 0xFF
		zero = zero && b == 0x00
	}
	return ff || zero
}

func decodeGcnDirEntry(raw []byte, order binary.ByteOrder, enc Encoding) (DirEntry, error) {
	var e gcnDirEntry
	if err := binary.Read(bytes.NewReader(raw), order, &e); err != nil {
		return DirEntry{}, checkpoint.Wrapf(err, "directory entry: %w", ErrCorruptDirectory)
	}

	return DirEntry{
		GameCode:     strings.TrimRight(string(e.GameCode[:]), "\x00"),
		Company:      strings.TrimRight(string(e.Company[:]), "\x00"),
		BannerFormat: e.BannerFormat,
		Filename:     enc.decode(e.Filename[:]),
		Modified:     ParseGcnTime(e.LastModified),
		IconAddr:     e.IconAddr,
		IconFormat:   e.IconFormat,
		IconSpeed:    e.IconSpeed,
		Permission:   e.Permission,
		CopyTimes:    e.CopyTimes,
		Block:        e.Block,
		Length:       e.Length,
		CommentAddr:  e.CommentAddr,
	}, nil
}

// encodeGcnDirEntry returns the 64 byte on-card form of e.
func encodeGcnDirEntry(e DirEntry, enc Encoding) []byte {
	raw := gcnDirEntry{
		Pad00:        0xFF,
		BannerFormat: e.BannerFormat,
		LastModified: GcnTime(e.Modified),
		IconAddr:     e.IconAddr,
		IconFormat:   e.IconFormat,
		IconSpeed:    e.IconSpeed,
		Permission:   e.Permission,
		CopyTimes:    e.CopyTimes,
		Block:        e.Block,
		Length:       e.Length,
		Pad01:        0xFFFF,
		CommentAddr:  e.CommentAddr,
	}
	copy(raw.GameCode[:], padID(e.GameCode, 4))
	copy(raw.Company[:], padID(e.Company, 2))
	copy(raw.Filename[:], enc.encode(e.Filename, len(raw.Filename)))

	buf := bytes.NewBuffer(make([]byte, 0, gcnDirEntrySize))
	_ = binary.Write(buf, binary.BigEndian, &raw)
	return buf.Bytes()
}

func padID(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat("\x00", n-len(s))
}

func putGcnHeader(block []byte, h Header) {
	for i := range block {
		block[i] = 0xFF
	}

	raw := gcnHeader{
		Serial:     h.Serial,
		FormatTime: OSTime(h.FormatTime),
		SramBias:   h.SramBias,
		SramLang:   h.SramLang,
		DeviceID:   h.DeviceID,
		SizeMbits:  h.SizeMbits,
		Encoding:   uint16(h.Encoding),
	}
	buf := bytes.NewBuffer(make([]byte, 0, binary.Size(raw)))
	_ = binary.Write(buf, binary.BigEndian, &raw)
	copy(block, buf.Bytes())

	putGcnChecksum(block[gcnHeaderChecksumLen:], gcnChecksum.Sum(block[:gcnHeaderChecksumLen]))
}

func putGcnDirTable(block []byte, t *DirTable, enc Encoding) {
	for i := range block {
		block[i] = 0xFF
	}
	for slot, e := range t.Entries {
		if slot >= gcnMaxFiles {
			break
		}
		copy(block[slot*gcnDirEntrySize:], encodeGcnDirEntry(e, enc))
	}

	binary.BigEndian.PutUint16(block[gcnDirCounterOffset:], t.Counter)
	putGcnChecksum(block[gcnDirChecksumOffset:], gcnChecksum.Sum(block[:gcnDirChecksumOffset]))
}

func putGcnBat(block []byte, t *BlockTable) {
	for i := range block {
		block[i] = 0
	}

	binary.BigEndian.PutUint16(block[gcnBatCounterOffset:], t.Counter)
	binary.BigEndian.PutUint16(block[gcnBatFreeOffset:], t.FreeBlocks)
	binary.BigEndian.PutUint16(block[gcnBatLastAllocOffset:], t.LastAlloc)

	for i, e := range t.Entries {
		offset := gcnBatEntryOffset + 2*(i-gcnSystemBlocks)
		if i < gcnSystemBlocks || offset+2 > len(block) {
			continue
		}

		v := gcnBatFree
		switch {
		case e.IsLast():
			v = gcnBatLast
		case e.IsNext():
			v = e.Next()
		}
		binary.BigEndian.PutUint16(block[offset:], v)
	}

	putGcnChecksum(block[0:], gcnChecksum.Sum(block[gcnBatChecksumStart:]))
}

func putGcnChecksum(dst []byte, v checksum.Value) {
	cs1, cs2 := gcnChecksum.Split(v)
	binary.BigEndian.PutUint16(dst[0:], cs1)
	binary.BigEndian.PutUint16(dst[2:], cs2)
}

func formatGcn(numBlocks int, enc Encoding) []byte {
	image := make([]byte, numBlocks*gcnBlockSize)
	block := func(i int) []byte {
		return image[i*gcnBlockSize : (i+1)*gcnBlockSize]
	}

	putGcnHeader(block(gcnHeaderBlock), Header{
		SizeMbits: uint16(numBlocks / 16),
		Encoding:  enc,
	})

	g := Geometry{
		BlockSize: gcnBlockSize,
		NumBlocks: numBlocks,
		FirstData: gcnSystemBlocks,
		DataEnd:   numBlocks,
	}
	for i := 0; i < 2; i++ {
		putGcnDirTable(block(gcnDirBlock+i), &DirTable{Capacity: gcnMaxFiles}, enc)

		bat := NewBlockTable(g)
		bat.LastAlloc = gcnSystemBlocks - 1
		putGcnBat(block(gcnBatBlock+i), bat)
	}

	return image
}
