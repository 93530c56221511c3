// Package filedb is the catalogue of known memory card files used to
// recognize lost files.
//
// A database is loaded once from one or more XML definition files:
//
//	<mcfiledb format="gcn">
//	  <game>
//	    <name>Sonic Adventure DX</name>
//	    <gamecode>GXS</gamecode>
//	    <company>8P</company>
//	    <file>
//	      <info>Save slot $F1</info>
//	      <search>
//	        <address>0x0000</address>
//	        <gameDesc>^SONIC ADVENTURE DX$</gameDesc>
//	        <fileDesc>^SLOT ([0-9]+)$</fileDesc>
//	      </search>
//	      <dirEntry>
//	        <filename>SONICADV_$F1</filename>
//	        <bannerFormat>0x02</bannerFormat>
//	        <iconAddress>0x40</iconAddress>
//	        <iconFormat>0x0002</iconFormat>
//	        <iconSpeed>0x0003</iconSpeed>
//	        <permission>0x04</permission>
//	        <length>3</length>
//	      </dirEntry>
//	      <checksum algorithm="crc16" start="0x40" length="0x100" address="0x3E"/>
//	    </file>
//	  </game>
//	</mcfiledb>
//
// Broken or duplicate file entries are skipped one by one. Their messages
// are collected and available through Database.ErrorString.
//
// A loaded Database is never modified and may be shared between goroutines.
package filedb

import (
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/aligator/mcrecover/checkpoint"
	"github.com/aligator/mcrecover/checksum"
	"github.com/spf13/afero"
)

// These errors may occur while loading a database.
var (
	ErrReadDatabase  = errors.New("could not read the database file")
	ErrParseDatabase = errors.New("could not parse the database file")
	ErrNoEntries     = errors.New("no valid entry in the database")
)

// Known card format names.
const (
	FormatGCN = "gcn"
	FormatVMU = "vmu"
)

// Database is an ordered set of descriptors.
type Database struct {
	descriptors []*Descriptor
	errs        []string
}

// Descriptors returns all descriptors in priority order.
func (db *Database) Descriptors() []*Descriptor {
	return db.descriptors
}

// ForFormat returns the descriptors for one card format in priority order.
func (db *Database) ForFormat(format string) []*Descriptor {
	var result []*Descriptor
	for _, d := range db.descriptors {
		if d.Format == format {
			result = append(result, d)
		}
	}
	return result
}

// Len returns the number of descriptors.
func (db *Database) Len() int {
	return len(db.descriptors)
}

// Skipped returns the number of skipped file entries.
func (db *Database) Skipped() int {
	return len(db.errs)
}

// ErrorString describes every skipped entry, one per line.
func (db *Database) ErrorString() string {
	return strings.Join(db.errs, "\n")
}

// Load reads the given definition files from fs into one database.
// Later files have a lower priority than earlier ones.
func Load(fs afero.Fs, paths ...string) (*Database, error) {
	l := newLoader()
	for _, path := range paths {
		f, err := fs.Open(path)
		if err != nil {
			return nil, checkpoint.Wrapf(err, "%s: %w", path, ErrReadDatabase)
		}

		err = l.parse(f, path)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return l.finish()
}

// Parse reads a single definition document.
func Parse(r io.Reader, name string) (*Database, error) {
	l := newLoader()
	if err := l.parse(r, name); err != nil {
		return nil, err
	}
	return l.finish()
}

type loader struct {
	db    *Database
	seen  map[string]string
	total int
}

func newLoader() *loader {
	return &loader{
		db:   &Database{},
		seen: make(map[string]string),
	}
}

func (l *loader) parse(r io.Reader, name string) error {
	var doc xmlDatabase
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return checkpoint.Wrapf(err, "%s: %w", name, ErrParseDatabase)
	}

	format := strings.ToLower(strings.TrimSpace(doc.Format))
	if format == "" {
		format = FormatGCN
	}
	if format != FormatGCN && format != FormatVMU {
		return checkpoint.Wrapf(fmt.Errorf("unknown card format %q", doc.Format), "%s: %w", name, ErrParseDatabase)
	}

	for gi, game := range doc.Games {
		for fi, file := range game.Files {
			l.total++
			source := fmt.Sprintf("%s#%d.%d", name, gi+1, fi+1)

			d, err := newDescriptor(format, game, file)
			if err != nil {
				l.db.errs = append(l.db.errs, fmt.Sprintf("%s: %v", source, err))
				continue
			}

			key := strings.Join([]string{d.Format, d.GameCode, d.Company, d.DirEntry.Filename}, "|")
			if first, ok := l.seen[key]; ok {
				l.db.errs = append(l.db.errs, fmt.Sprintf("%s: duplicate of %s", source, first))
				continue
			}
			l.seen[key] = source

			d.Source = source
			d.Priority = len(l.db.descriptors)
			l.db.descriptors = append(l.db.descriptors, d)
		}
	}

	return nil
}

func (l *loader) finish() (*Database, error) {
	if l.total > 0 && len(l.db.descriptors) == 0 {
		return nil, checkpoint.Wrap(errors.New(l.db.ErrorString()), ErrNoEntries)
	}
	return l.db, nil
}

func newDescriptor(format string, game xmlGame, file xmlFile) (*Descriptor, error) {
	d := &Descriptor{
		Format:   format,
		GameName: strings.TrimSpace(game.Name),
		FileInfo: strings.TrimSpace(file.Info),
		GameCode: strings.TrimSpace(game.GameCode),
		Company:  strings.TrimSpace(game.Company),
	}

	if format == FormatGCN {
		if len(d.GameCode) != 3 && len(d.GameCode) != 4 {
			return nil, fmt.Errorf("invalid game code %q", d.GameCode)
		}
		if len(d.Company) != 2 {
			return nil, fmt.Errorf("invalid company code %q", d.Company)
		}
	}

	var err error
	if d.Address, err = parseUint32(file.Search.Address); err != nil {
		return nil, fmt.Errorf("search address: %w", err)
	}
	if d.GameDesc, err = compile(file.Search.GameDesc); err != nil {
		return nil, fmt.Errorf("gameDesc: %w", err)
	}
	if d.FileDesc, err = compile(file.Search.FileDesc); err != nil {
		return nil, fmt.Errorf("fileDesc: %w", err)
	}
	if d.GameDesc == nil && d.FileDesc == nil {
		return nil, errors.New("no search pattern")
	}

	if d.DirEntry, err = newDirEntryTemplate(file.DirEntry); err != nil {
		return nil, err
	}

	order := binary.ByteOrder(binary.BigEndian)
	if format == FormatVMU {
		order = binary.LittleEndian
	}
	for i, c := range file.Checksums {
		def, err := newChecksumDef(c, order)
		if err != nil {
			return nil, fmt.Errorf("checksum %d: %w", i+1, err)
		}
		d.Checksums = append(d.Checksums, def)
	}

	return d, nil
}

func newDirEntryTemplate(x xmlDirEntry) (DirEntryTemplate, error) {
	t := DirEntryTemplate{
		Filename: strings.TrimSpace(x.Filename),
	}
	if t.Filename == "" {
		return t, errors.New("dirEntry: missing filename")
	}

	fields := []struct {
		name string
		raw  string
		bits int
		set  func(uint64)
	}{
		{"bannerFormat", x.BannerFormat, 8, func(v uint64) { t.BannerFormat = uint8(v) }},
		{"iconAddress", x.IconAddress, 32, func(v uint64) { t.IconAddr = uint32(v) }},
		{"iconFormat", x.IconFormat, 16, func(v uint64) { t.IconFormat = uint16(v) }},
		{"iconSpeed", x.IconSpeed, 16, func(v uint64) { t.IconSpeed = uint16(v) }},
		{"permission", x.Permission, 8, func(v uint64) { t.Permission = uint8(v) }},
		{"length", x.Length, 16, func(v uint64) { t.Length = uint16(v) }},
	}
	for _, f := range fields {
		v, err := parseUint(f.raw, f.bits)
		if err != nil {
			return t, fmt.Errorf("dirEntry: %s: %w", f.name, err)
		}
		f.set(v)
	}

	if t.Length == 0 {
		return t, errors.New("dirEntry: length must be at least one block")
	}
	return t, nil
}

func newChecksumDef(x xmlChecksum, order binary.ByteOrder) (ChecksumDef, error) {
	switch strings.ToLower(strings.TrimSpace(x.Endian)) {
	case "":
	case "big", "be":
		order = binary.BigEndian
	case "little", "le":
		order = binary.LittleEndian
	default:
		return ChecksumDef{}, fmt.Errorf("invalid endian %q", x.Endian)
	}

	alg, err := checksum.Parse(x.Algorithm, order)
	if err != nil {
		return ChecksumDef{}, err
	}
	if _, ok := alg.(checksum.None); ok {
		return ChecksumDef{}, errors.New("missing algorithm")
	}

	if crc, ok := alg.(checksum.CRC16); ok {
		poly, err := parseUint(x.Poly, 16)
		if err != nil {
			return ChecksumDef{}, fmt.Errorf("poly: %w", err)
		}
		initial, err := parseUint(x.Init, 16)
		if err != nil {
			return ChecksumDef{}, fmt.Errorf("init: %w", err)
		}
		if poly != 0 {
			crc.Poly = uint16(poly)
		}
		crc.Init = uint16(initial)
		alg = crc
	}

	def := ChecksumDef{Algorithm: alg}
	if def.Start, err = parseUint32(x.Start); err != nil {
		return def, fmt.Errorf("start: %w", err)
	}
	if def.Length, err = parseUint32(x.Length); err != nil {
		return def, fmt.Errorf("length: %w", err)
	}
	if def.Address, err = parseUint32(x.Address); err != nil {
		return def, fmt.Errorf("address: %w", err)
	}
	if def.Length == 0 {
		return def, errors.New("empty checksum region")
	}
	return def, nil
}

func compile(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

func parseUint(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 0, bits)
}

func parseUint32(s string) (uint32, error) {
	v, err := parseUint(s, 32)
	return uint32(v), err
}
