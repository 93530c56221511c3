package mcrecover

import "errors"

// These errors may occur while opening or modifying a card.
var (
	ErrInvalidImage      = errors.New("invalid card image")
	ErrUnknownFormat     = errors.New("unknown card format")
	ErrCorruptDirectory  = errors.New("both directory table copies are corrupt")
	ErrCorruptBlockTable = errors.New("both block allocation table copies are corrupt")
	ErrBothCopiesInvalid = errors.New("no valid table copy")
	ErrInvalidIndex      = errors.New("invalid table copy index")
	ErrBlockRange        = errors.New("block index out of range")
	ErrBlockOverlap      = errors.New("block is already used by another file")
	ErrEmptyChain        = errors.New("file has no blocks")
	ErrNotGameCube       = errors.New("not a GameCube file")
	ErrScanRunning       = errors.New("scan already running")
)
