package filedb

import (
	"fmt"
	"regexp"

	"github.com/aligator/mcrecover/checksum"
	"github.com/aligator/mcrecover/varreplace"
)

// Descriptor describes one recognizable file type.
// Descriptors are created by the loader and never modified afterwards.
type Descriptor struct {
	// Format is the card format the descriptor applies to ("gcn" or "vmu").
	Format string

	// GameName and FileInfo are description templates.
	GameName string
	FileInfo string

	// GameCode has either 3 characters, the region being filled in by the
	// scanner, or the full 4 characters.
	GameCode string
	Company  string

	// Address is the offset of the comment region relative to the file start.
	Address  uint32
	GameDesc *regexp.Regexp
	FileDesc *regexp.Regexp

	DirEntry  DirEntryTemplate
	Checksums []ChecksumDef

	// Source names the definition, e.g. "GXS.xml#3".
	Source string

	// Priority is the load order. Lower values win over higher ones.
	Priority int
}

// DirEntryTemplate holds the directory entry values of a synthesized entry.
type DirEntryTemplate struct {
	Filename     string
	BannerFormat uint8
	IconAddr     uint32
	IconFormat   uint16
	IconSpeed    uint16
	Permission   uint8
	Length       uint16
}

// Captures are the groups captured by a successful match.
// Index 0 of each namespace is the whole match.
type Captures struct {
	Game []string
	File []string
}

// Match matches the comment strings against the descriptor patterns.
// A descriptor without a pattern for one of the strings accepts any value.
func (d *Descriptor) Match(gameDesc, fileDesc string) (Captures, bool) {
	game, ok := match(d.GameDesc, gameDesc)
	if !ok {
		return Captures{}, false
	}
	file, ok := match(d.FileDesc, fileDesc)
	if !ok {
		return Captures{}, false
	}
	return Captures{Game: game, File: file}, true
}

func match(re *regexp.Regexp, s string) ([]string, bool) {
	if re == nil {
		return []string{s}, true
	}
	groups := re.FindStringSubmatch(s)
	if groups == nil {
		return nil, false
	}
	return groups, true
}

// Render replaces the capture variables in tmpl.
func (d *Descriptor) Render(tmpl string, c Captures) string {
	return varreplace.ExecCaptures(tmpl, c.Game, c.File)
}

// Filename renders the filename template.
func (d *Descriptor) Filename(c Captures) string {
	return d.Render(d.DirEntry.Filename, c)
}

// ID returns the game code and company, e.g. "GXS8P".
func (d *Descriptor) ID() string {
	return d.GameCode + d.Company
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s %s (%s)", d.ID(), d.DirEntry.Filename, d.Source)
}

// ChecksumDef describes a checksum stored inside the file payload.
type ChecksumDef struct {
	Algorithm checksum.Algorithm

	// Start and Length select the checksummed payload region.
	Start  uint32
	Length uint32

	// Address is the payload offset of the stored value.
	Address uint32
}

// Verify checks the stored checksum in payload.
// A region outside of payload never verifies.
func (c ChecksumDef) Verify(payload []byte) bool {
	end := uint64(c.Start) + uint64(c.Length)
	storedEnd := uint64(c.Address) + uint64(c.Algorithm.Size())
	if end > uint64(len(payload)) || storedEnd > uint64(len(payload)) {
		return false
	}

	stored := c.Algorithm.Stored(payload[c.Address:storedEnd])
	return checksum.IsValid(stored, payload[c.Start:end], c.Algorithm)
}
