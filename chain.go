package mcrecover

import "strings"

// ChainFlags describe anomalies found while resolving a block chain.
type ChainFlags uint8

const (
	// ChainCycle is set if a block is visited twice.
	ChainCycle ChainFlags = 1 << iota
	// ChainOutOfRange is set if a link points outside of the data area.
	ChainOutOfRange
	// ChainFree is set if a link points to a free or reserved block.
	ChainFree
	// ChainOverlength is set if the chain grew beyond the number of blocks.
	ChainOverlength
	// ChainLengthMismatch is set if the chain length differs from the length
	// declared by the directory entry.
	ChainLengthMismatch
)

var chainFlagNames = []string{"cycle", "out of range", "free block", "overlength", "length mismatch"}

func (f ChainFlags) String() string {
	if f == 0 {
		return "ok"
	}
	var names []string
	for i, name := range chainFlagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

// Chain is the ordered block list of a file.
// A chain with flags set was truncated at the first anomaly.
type Chain struct {
	Blocks []uint16
	Flags  ChainFlags
}

// Anomalous returns true if any flag is set.
func (c Chain) Anomalous() bool {
	return c.Flags != 0
}

// Walk follows the links of bat starting at start until the last block
// marker. Cycles, links leaving the data area and links to unallocated
// blocks end the walk early and are reported in the flags.
func Walk(start uint16, bat *BlockTable, g Geometry) Chain {
	var chain Chain
	visited := make([]bool, g.NumBlocks)

	block := start
	for {
		if !g.InData(int(block)) {
			chain.Flags |= ChainOutOfRange
			return chain
		}
		if visited[block] {
			chain.Flags |= ChainCycle
			return chain
		}
		if len(chain.Blocks) >= g.NumBlocks {
			chain.Flags |= ChainOverlength
			return chain
		}

		visited[block] = true
		chain.Blocks = append(chain.Blocks, block)

		e := bat.Entry(int(block))
		switch {
		case e.IsLast():
			return chain
		case e.IsNext():
			block = e.Next()
		default:
			chain.Flags |= ChainFree
			return chain
		}
	}
}

// CheckChain validates an explicitly given block sequence the same way Walk
// validates the links of a table.
func CheckChain(blocks []uint16, g Geometry) Chain {
	var chain Chain
	visited := make([]bool, g.NumBlocks)

	for _, block := range blocks {
		if !g.InData(int(block)) {
			chain.Flags |= ChainOutOfRange
			break
		}
		if visited[block] {
			chain.Flags |= ChainCycle
			break
		}
		if len(chain.Blocks) >= g.NumBlocks {
			chain.Flags |= ChainOverlength
			break
		}

		visited[block] = true
		chain.Blocks = append(chain.Blocks, block)
	}

	return chain
}

// Contiguous returns the chain start, start+1, ..., start+length-1.
func Contiguous(start uint16, length int, g Geometry) Chain {
	blocks := make([]uint16, 0, length)
	for i := 0; i < length; i++ {
		b := int(start) + i
		if b > 0xFFFF {
			break
		}
		blocks = append(blocks, uint16(b))
	}

	chain := CheckChain(blocks, g)
	if len(chain.Blocks) < length && chain.Flags == 0 {
		chain.Flags |= ChainOutOfRange
	}
	return chain
}
