package mcrecover

import (
	"fmt"
	"io"

	"github.com/aligator/mcrecover/checkpoint"
)

// BlockStore provides read only, fixed size block access to a card image
// which is held in memory for the whole analysis.
type BlockStore struct {
	data      []byte
	blockSize int
}

// NewBlockStore uses data as card image. data is not copied, the store owns
// it from now on.
func NewBlockStore(data []byte, blockSize int) (*BlockStore, error) {
	if blockSize <= 0 {
		return nil, checkpoint.From(fmt.Errorf("invalid block size %d", blockSize))
	}
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, checkpoint.Wrap(fmt.Errorf("image size %d is no multiple of the block size %d", len(data), blockSize), ErrInvalidImage)
	}

	return &BlockStore{
		data:      data,
		blockSize: blockSize,
	}, nil
}

// BlockSize returns the size of one block in bytes.
func (s *BlockStore) BlockSize() int {
	return s.blockSize
}

// NumBlocks returns the number of blocks of the image.
func (s *BlockStore) NumBlocks() int {
	return len(s.data) / s.blockSize
}

// Block returns the content of a single block.
// The returned slice shares the image memory and must not be modified.
func (s *BlockStore) Block(idx int) ([]byte, error) {
	if idx < 0 || idx >= s.NumBlocks() {
		return nil, checkpoint.Wrap(fmt.Errorf("block %d of %d", idx, s.NumBlocks()), ErrBlockRange)
	}

	start := idx * s.blockSize
	end := start + s.blockSize
	return s.data[start:end:end], nil
}

// ReadBlocks copies the given blocks in order into a new buffer.
func (s *BlockStore) ReadBlocks(blocks []uint16) ([]byte, error) {
	buf := make([]byte, 0, len(blocks)*s.blockSize)
	for _, b := range blocks {
		block, err := s.Block(int(b))
		if err != nil {
			return nil, err
		}
		buf = append(buf, block...)
	}
	return buf, nil
}

// ReadChainAt reads len(p) bytes starting at offset off of the file made of
// blocks. It returns io.EOF if the chain ends before p is filled.
func (s *BlockStore) ReadChainAt(p []byte, blocks []uint16, off int64) (int, error) {
	if off < 0 {
		return 0, checkpoint.Wrap(fmt.Errorf("negative offset %d", off), ErrBlockRange)
	}

	bs := int64(s.blockSize)
	n := 0
	for n < len(p) {
		idx := off / bs
		if idx >= int64(len(blocks)) {
			return n, io.EOF
		}
		block, err := s.Block(int(blocks[idx]))
		if err != nil {
			return n, err
		}
		m := copy(p[n:], block[off%bs:])
		n += m
		off += int64(m)
	}
	return n, nil
}

// ReadAt implements io.ReaderAt over the raw image.
func (s *BlockStore) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, checkpoint.Wrap(fmt.Errorf("negative offset %d", off), ErrBlockRange)
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}

	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
