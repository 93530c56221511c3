// File model contains the structs which match the on-card structures of the
// GameCube and Dreamcast VMU memory card filesystems.

package mcrecover

// GameCube system area layout. All values are big endian.
const (
	gcnBlockSize    = 0x2000
	gcnSystemBlocks = 5
	gcnMaxFiles     = 127
	gcnDirEntrySize = 0x40

	gcnHeaderBlock = 0
	gcnDirBlock    = 1
	gcnBatBlock    = 3

	// The header checksum covers 0x000-0x1FB and is stored at 0x1FC.
	gcnHeaderChecksumLen = 0x1FC

	// The directory checksum covers 0x0000-0x1FFB and is stored at 0x1FFC.
	gcnDirCounterOffset  = 0x1FFA
	gcnDirChecksumOffset = 0x1FFC

	// The BAT checksum covers 0x0004-0x1FFF and is stored at 0x0000.
	// The BAT header is followed by the entries for blocks 5 and up.
	gcnBatChecksumStart   = 0x0004
	gcnBatCounterOffset   = 0x0004
	gcnBatFreeOffset      = 0x0006
	gcnBatLastAllocOffset = 0x0008
	gcnBatEntryOffset     = 0x000A

	gcnBatFree uint16 = 0x0000
	gcnBatLast uint16 = 0xFFFF
)

// gcnHeader is the start of block 0.
type gcnHeader struct {
	Serial     [12]byte
	FormatTime uint64
	SramBias   uint32
	SramLang   uint32
	Reserved1  uint32
	DeviceID   uint16
	SizeMbits  uint16
	Encoding   uint16
}

// gcnDirEntry is one slot of the directory table.
type gcnDirEntry struct {
	GameCode     [4]byte
	Company      [2]byte
	Pad00        uint8
	BannerFormat uint8
	Filename     [32]byte
	LastModified uint32
	IconAddr     uint32
	IconFormat   uint16
	IconSpeed    uint16
	Permission   uint8
	CopyTimes    uint8
	Block        uint16
	Length       uint16
	Pad01        uint16
	CommentAddr  uint32
}

// Dreamcast VMU layout. All values are little endian.
const (
	vmuBlockSize    = 0x200
	vmuNumBlocks    = 256
	vmuRootBlock    = 255
	vmuDirEntrySize = 0x20

	vmuBatFree uint16 = 0xFFFC
	vmuBatLast uint16 = 0xFFFA

	vmuFileNone uint8 = 0x00
	vmuFileData uint8 = 0x33
	vmuFileGame uint8 = 0xCC

	// Defaults of a freshly formatted VMU.
	vmuFatBlock   = 254
	vmuDirBlock   = 253
	vmuDirBlocks  = 13
	vmuUserBlocks = 200
)

// vmuRoot is the start of the root block.
type vmuRoot struct {
	Magic       [16]byte
	CustomColor uint8
	Color       [4]byte
	_           [27]byte
	Timestamp   [8]byte
	_           [14]byte
	FatAddr     uint16
	FatSize     uint16
	DirAddr     uint16
	DirSize     uint16
	IconShape   uint16
	UserBlocks  uint16
}

// vmuDirEntry is one slot of a directory block.
type vmuDirEntry struct {
	FileType    uint8
	CopyProtect uint8
	Block       uint16
	Filename    [12]byte
	Timestamp   [8]byte
	Length      uint16
	HeaderAddr  uint16
	Reserved    [4]byte
}
