package mcrecover

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/aligator/mcrecover/checkpoint"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// MaxImageSize is the size of the largest supported card, 2048 GameCube
// blocks (128 Mbit).
const MaxImageSize = 2048 * gcnBlockSize

var (
	gzipMagic = []byte{0x1F, 0x8B}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

// ReadImage reads a whole card image from r.
// gzip and zstd compressed dumps are decompressed transparently.
func ReadImage(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(len(zstdMagic))

	var src io.Reader = br
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, checkpoint.Wrap(err, ErrInvalidImage)
		}
		defer gz.Close()
		src = gz

	case bytes.HasPrefix(magic, zstdMagic):
		dec, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(MaxImageSize*2))
		if err != nil {
			return nil, checkpoint.Wrap(err, ErrInvalidImage)
		}
		defer dec.Close()
		src = dec
	}

	image, err := io.ReadAll(io.LimitReader(src, MaxImageSize+1))
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrInvalidImage)
	}
	if len(image) > MaxImageSize {
		return nil, checkpoint.Wrap(fmt.Errorf("image exceeds %d bytes", MaxImageSize), ErrInvalidImage)
	}
	if len(image) == 0 {
		return nil, checkpoint.Wrap(fmt.Errorf("empty image"), ErrInvalidImage)
	}

	return image, nil
}
