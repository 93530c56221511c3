package mcrecover

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/aligator/mcrecover/checkpoint"
	"github.com/aligator/mcrecover/checksum"
	"github.com/aligator/mcrecover/filedb"
)

// Format is a memory card family.
type Format int

const (
	FormatUnknown Format = iota
	FormatGCN
	FormatVMU
)

func (f Format) String() string {
	switch f {
	case FormatGCN:
		return filedb.FormatGCN
	case FormatVMU:
		return filedb.FormatVMU
	default:
		return "unknown"
	}
}

// ParseFormat returns the format with the given name ("gcn" or "vmu").
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case filedb.FormatGCN, "gc", "gamecube":
		return FormatGCN, nil
	case filedb.FormatVMU, "dc", "dreamcast":
		return FormatVMU, nil
	default:
		return FormatUnknown, checkpoint.Wrap(fmt.Errorf("format %q", name), ErrUnknownFormat)
	}
}

// BlockSize returns the size of one block.
func (f Format) BlockSize() int {
	switch f {
	case FormatGCN:
		return gcnBlockSize
	case FormatVMU:
		return vmuBlockSize
	default:
		return 0
	}
}

// ByteOrder returns the byte order of all multi-byte fields.
func (f Format) ByteOrder() binary.ByteOrder {
	if f == FormatVMU {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// TableAlgorithm returns the checksum algorithm protecting the directory and
// block tables.
func (f Format) TableAlgorithm() checksum.Algorithm {
	if f == FormatGCN {
		return checksum.AddInvDual16{Order: binary.BigEndian}
	}
	return checksum.None{}
}

// tableCodec decodes the directory and block tables of one format.
type tableCodec struct {
	order binary.ByteOrder
	alg   checksum.Algorithm
}

func (f Format) tableCodec() tableCodec {
	return tableCodec{order: f.ByteOrder(), alg: f.TableAlgorithm()}
}

// check compares the checksum stored at the start of raw with the one of
// data.
func (c tableCodec) check(data, raw []byte) (stored, computed checksum.Value, valid bool) {
	if len(raw) >= c.alg.Size() {
		stored = c.alg.Stored(raw[:c.alg.Size()])
	}
	computed = c.alg.Sum(data)
	return stored, computed, checksum.IsValid(stored, data, c.alg)
}

// commentSizes returns the size of the game and file description fields.
func (f Format) commentSizes() (game, file int) {
	if f == FormatVMU {
		return 16, 32
	}
	return 32, 32
}

// gcnSizes lists the block counts of all GameCube card sizes (4 to 128 Mbit).
var gcnSizes = []int{64, 128, 256, 512, 1024, 2048}

// DetectFormat guesses the format of a raw image from its size and content.
func DetectFormat(image []byte) Format {
	if len(image) == vmuNumBlocks*vmuBlockSize && isVmuFormatted(image[vmuRootBlock*vmuBlockSize:]) {
		return FormatVMU
	}

	if len(image)%gcnBlockSize == 0 {
		n := len(image) / gcnBlockSize
		for _, size := range gcnSizes {
			if n == size {
				return FormatGCN
			}
		}
	}

	return FormatUnknown
}

// FormatImage returns a freshly formatted, empty card image.
// GameCube cards may have 64, 128, 256, 512, 1024 or 2048 blocks, a VMU
// always has 256 blocks.
func FormatImage(f Format, numBlocks int, enc Encoding) ([]byte, error) {
	switch f {
	case FormatGCN:
		valid := false
		for _, size := range gcnSizes {
			valid = valid || numBlocks == size
		}
		if !valid {
			return nil, checkpoint.Wrap(fmt.Errorf("%d blocks", numBlocks), ErrInvalidImage)
		}
		return formatGcn(numBlocks, enc), nil

	case FormatVMU:
		if numBlocks != vmuNumBlocks {
			return nil, checkpoint.Wrap(fmt.Errorf("%d blocks", numBlocks), ErrInvalidImage)
		}
		return formatVmu(), nil

	default:
		return nil, checkpoint.From(ErrUnknownFormat)
	}
}

// Header holds the card wide information of the system area.
type Header struct {
	Serial     [12]byte
	FormatTime time.Time
	SramBias   uint32
	SramLang   uint32
	DeviceID   uint16
	SizeMbits  uint16
	Encoding   Encoding

	// VMU only.
	UserBlocks uint16
	IconShape  uint16
}

// system is the decoded system area of a card.
type system struct {
	geometry Geometry
	header   Header

	headerStored   checksum.Value
	headerComputed checksum.Value

	dirs []TableCopy[*DirTable]
	bats []TableCopy[*BlockTable]
}

func readSystem(f Format, store *BlockStore) (system, error) {
	switch f {
	case FormatGCN:
		return readGcnSystem(store, f.tableCodec())
	case FormatVMU:
		return readVmuSystem(store, f.tableCodec())
	default:
		return system{}, checkpoint.From(ErrUnknownFormat)
	}
}
