package mcrecover

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/aligator/mcrecover/checkpoint"
)

func isVmuFormatted(root []byte) bool {
	if len(root) < 16 {
		return false
	}
	for _, b := range root[:16] {
		if b != 0x55 {
			return false
		}
	}
	return true
}

func readVmuSystem(store *BlockStore, codec tableCodec) (system, error) {
	var sys system

	if store.NumBlocks() != vmuNumBlocks {
		return sys, checkpoint.Wrap(fmt.Errorf("a VMU has %d blocks, not %d", vmuNumBlocks, store.NumBlocks()), ErrInvalidImage)
	}

	block, err := store.Block(vmuRootBlock)
	if err != nil {
		return sys, err
	}
	if !isVmuFormatted(block) {
		return sys, checkpoint.Wrap(fmt.Errorf("root block is not formatted"), ErrInvalidImage)
	}

	var root vmuRoot
	if err := binary.Read(bytes.NewReader(block), codec.order, &root); err != nil {
		return sys, checkpoint.Wrap(err, ErrInvalidImage)
	}

	userBlocks := int(root.UserBlocks)
	if userBlocks == 0 || userBlocks > vmuNumBlocks {
		userBlocks = vmuUserBlocks
	}
	sys.geometry = Geometry{
		BlockSize: vmuBlockSize,
		NumBlocks: vmuNumBlocks,
		FirstData: 0,
		DataEnd:   userBlocks,
	}
	sys.header = Header{
		FormatTime: ParseBCDTime(root.Timestamp),
		SizeMbits:  1,
		Encoding:   EncodingSJIS,
		UserBlocks: root.UserBlocks,
		IconShape:  root.IconShape,
	}

	fat, err := store.Block(int(root.FatAddr))
	if err != nil {
		return sys, checkpoint.Wrap(err, ErrCorruptBlockTable)
	}
	bat := TableCopy[*BlockTable]{Data: decodeVmuFat(fat, sys.geometry, codec.order)}
	bat.Stored, bat.Computed, bat.Valid = codec.check(fat, nil)
	if !bat.Valid {
		bat.Reason = fmt.Sprintf("checksum mismatch: stored %v, computed %v", bat.Stored, bat.Computed)
	}
	sys.bats = []TableCopy[*BlockTable]{bat}

	dir := &DirTable{}
	var dirData []byte
	for i := 0; i < int(root.DirSize); i++ {
		block, err := store.Block(int(root.DirAddr) - i)
		if err != nil {
			return sys, checkpoint.Wrap(err, ErrCorruptDirectory)
		}
		dirData = append(dirData, block...)
		for slot := 0; slot < vmuBlockSize/vmuDirEntrySize; slot++ {
			dir.Capacity++
			raw := block[slot*vmuDirEntrySize : (slot+1)*vmuDirEntrySize]
			if raw[0] == vmuFileNone {
				continue
			}
			entry, err := decodeVmuDirEntry(raw, codec.order)
			if err != nil {
				return sys, err
			}
			dir.Entries = append(dir.Entries, entry)
		}
	}
	dirCopy := TableCopy[*DirTable]{Data: dir}
	dirCopy.Stored, dirCopy.Computed, dirCopy.Valid = codec.check(dirData, nil)
	if !dirCopy.Valid {
		dirCopy.Reason = fmt.Sprintf("checksum mismatch: stored %v, computed %v", dirCopy.Stored, dirCopy.Computed)
	}
	sys.dirs = []TableCopy[*DirTable]{dirCopy}

	return sys, nil
}

func decodeVmuFat(block []byte, g Geometry, order binary.ByteOrder) *BlockTable {
	table := &BlockTable{
		Entries: make([]BatEntry, g.NumBlocks),
	}
	for i := range table.Entries {
		if !g.InData(i) {
			table.Entries[i] = BatReserved
			continue
		}

		switch v := order.Uint16(block[2*i:]); v {
		case vmuBatFree:
			table.Entries[i] = BatFree
			table.FreeBlocks++
		case vmuBatLast:
			table.Entries[i] = BatLast
		default:
			table.Entries[i] = NextBlock(v)
		}
	}
	return table
}

func decodeVmuDirEntry(raw []byte, order binary.ByteOrder) (DirEntry, error) {
	var e vmuDirEntry
	if err := binary.Read(bytes.NewReader(raw), order, &e); err != nil {
		return DirEntry{}, checkpoint.Wrapf(err, "directory entry: %w", ErrCorruptDirectory)
	}

	return DirEntry{
		Filename:    strings.TrimRight(EncodingSJIS.decode(e.Filename[:]), " "),
		Modified:    ParseBCDTime(e.Timestamp),
		Block:       e.Block,
		Length:      e.Length,
		CommentAddr: uint32(e.HeaderAddr) * vmuBlockSize,
		FileType:    e.FileType,
		CopyProtect: e.CopyProtect,
	}, nil
}

func encodeVmuDirEntry(e DirEntry) []byte {
	raw := vmuDirEntry{
		FileType:    e.FileType,
		CopyProtect: e.CopyProtect,
		Block:       e.Block,
		Timestamp:   BCDTime(e.Modified),
		Length:      e.Length,
		HeaderAddr:  uint16(e.CommentAddr / vmuBlockSize),
	}
	if raw.FileType == vmuFileNone {
		raw.FileType = vmuFileData
	}

	name := EncodingSJIS.encode(e.Filename, len(raw.Filename))
	for i, b := range name {
		if b == 0 {
			name[i] = ' '
		}
	}
	copy(raw.Filename[:], name)

	buf := bytes.NewBuffer(make([]byte, 0, vmuDirEntrySize))
	_ = binary.Write(buf, binary.LittleEndian, &raw)
	return buf.Bytes()
}

func putVmuFat(block []byte, t *BlockTable) {
	for i := 0; i < vmuNumBlocks; i++ {
		v := vmuBatFree
		if i < len(t.Entries) {
			switch e := t.Entries[i]; {
			case e.IsLast():
				v = vmuBatLast
			case e.IsNext():
				v = e.Next()
			}
		}
		binary.LittleEndian.PutUint16(block[2*i:], v)
	}

	// The system area is one chain per structure.
	binary.LittleEndian.PutUint16(block[2*vmuRootBlock:], vmuBatLast)
	binary.LittleEndian.PutUint16(block[2*vmuFatBlock:], vmuBatLast)
	for i := 0; i < vmuDirBlocks; i++ {
		b := vmuDirBlock - i
		v := uint16(b - 1)
		if i == vmuDirBlocks-1 {
			v = vmuBatLast
		}
		binary.LittleEndian.PutUint16(block[2*b:], v)
	}
}

// putVmuDir writes the entries into the directory blocks, dirBlock(0) being
// the first of them.
func putVmuDir(dirBlock func(i int) []byte, entries []DirEntry) {
	perBlock := vmuBlockSize / vmuDirEntrySize
	for i := 0; i < vmuDirBlocks; i++ {
		block := dirBlock(i)
		for j := range block {
			block[j] = 0
		}
	}
	for slot, e := range entries {
		if slot >= vmuDirBlocks*perBlock {
			break
		}
		block := dirBlock(slot / perBlock)
		copy(block[(slot%perBlock)*vmuDirEntrySize:], encodeVmuDirEntry(e))
	}
}

func formatVmu() []byte {
	image := make([]byte, vmuNumBlocks*vmuBlockSize)
	block := func(i int) []byte {
		return image[i*vmuBlockSize : (i+1)*vmuBlockSize]
	}

	root := block(vmuRootBlock)
	for i := 0; i < 16; i++ {
		root[i] = 0x55
	}
	binary.LittleEndian.PutUint16(root[0x46:], vmuFatBlock)
	binary.LittleEndian.PutUint16(root[0x48:], 1)
	binary.LittleEndian.PutUint16(root[0x4A:], vmuDirBlock)
	binary.LittleEndian.PutUint16(root[0x4C:], vmuDirBlocks)
	binary.LittleEndian.PutUint16(root[0x50:], vmuUserBlocks)

	g := Geometry{BlockSize: vmuBlockSize, NumBlocks: vmuNumBlocks, DataEnd: vmuUserBlocks}
	putVmuFat(block(vmuFatBlock), NewBlockTable(g))
	putVmuDir(func(i int) []byte { return block(vmuDirBlock - i) }, nil)

	return image
}
