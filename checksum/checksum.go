// Package checksum implements the checksum algorithms found on memory cards
// and inside save files.
//
// A mismatching checksum is never an error by itself. Callers compare a
// stored Value against a computed one and decide what a mismatch means.
package checksum

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
)

// Value is a computed or stored checksum.
type Value struct {
	Algorithm string
	Sum       uint32
}

func (v Value) String() string {
	if v.Algorithm == "" {
		return "none"
	}
	return fmt.Sprintf("%s:%08X", v.Algorithm, v.Sum)
}

// Algorithm computes checksums of one kind.
type Algorithm interface {
	// Name identifies the algorithm in database files and Values.
	Name() string

	// Size is the number of bytes a stored value occupies.
	Size() int

	// Sum computes the checksum of data.
	Sum(data []byte) Value

	// Stored decodes a stored checksum from raw, which must be Size() bytes long.
	Stored(raw []byte) Value
}

// Compute returns the checksum of data using alg.
func Compute(data []byte, alg Algorithm) Value {
	return alg.Sum(data)
}

// IsValid reports if stored matches the checksum computed from data.
func IsValid(stored Value, data []byte, alg Algorithm) bool {
	if _, ok := alg.(None); ok {
		return true
	}
	computed := alg.Sum(data)
	return stored.Algorithm == computed.Algorithm && stored.Sum == computed.Sum
}

// Parse returns the algorithm with the given database name.
// order is used by AddInvDual16 and for decoding stored values.
func Parse(name string, order binary.ByteOrder) (Algorithm, error) {
	if order == nil {
		order = binary.BigEndian
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None{}, nil
	case "addinvdual16":
		return AddInvDual16{Order: order}, nil
	case "addbytes32":
		return AddBytes32{Order: order}, nil
	case "crc16":
		return CRC16{Poly: DefaultCRC16Poly, Order: order}, nil
	case "crc32":
		return CRC32{Order: order}, nil
	default:
		return nil, fmt.Errorf("unknown checksum algorithm %q", name)
	}
}

// None is used for tables that carry no checksum. Every copy is valid.
type None struct{}

func (None) Name() string { return "none" }
func (None) Size() int { return 0 }
func (None) Sum(_ []byte) Value { return Value{} }
func (None) Stored(_ []byte) Value { return Value{} }

// AddInvDual16 is the GameCube card checksum: two 16-bit sums over the data
// words, the second one over the complemented words. A sum of 0xFFFF is
// stored as 0.
type AddInvDual16 struct {
	Order binary.ByteOrder
}

func (AddInvDual16) Name() string { return "addinvdual16" }
func (AddInvDual16) Size() int    { return 4 }

func (a AddInvDual16) Sum(data []byte) Value {
	var cs1, cs2 uint16
	for i := 0; i+1 < len(data); i += 2 {
		w := a.order().Uint16(data[i:])
		cs1 += w
		cs2 += w ^ 0xFFFF
	}

	if cs1 == 0xFFFF {
		cs1 = 0
	}
	if cs2 == 0xFFFF {
		cs2 = 0
	}

	return Value{Algorithm: a.Name(), Sum: uint32(cs1)<<16 | uint32(cs2)}
}

func (a AddInvDual16) Stored(raw []byte) Value {
	cs1 := a.order().Uint16(raw[0:])
	cs2 := a.order().Uint16(raw[2:])
	return Value{Algorithm: a.Name(), Sum: uint32(cs1)<<16 | uint32(cs2)}
}

// Split returns both 16-bit halves of a value produced by AddInvDual16.
func (AddInvDual16) Split(v Value) (cs1, cs2 uint16) {
	return uint16(v.Sum >> 16), uint16(v.Sum)
}

func (a AddInvDual16) order() binary.ByteOrder {
	if a.Order == nil {
		return binary.BigEndian
	}
	return a.Order
}

// AddBytes32 is the plain 32-bit sum of all bytes.
type AddBytes32 struct {
	Order binary.ByteOrder
}

func (AddBytes32) Name() string { return "addbytes32" }
func (AddBytes32) Size() int    { return 4 }

func (a AddBytes32) Sum(data []byte) Value {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return Value{Algorithm: a.Name(), Sum: sum}
}

func (a AddBytes32) Stored(raw []byte) Value {
	return Value{Algorithm: a.Name(), Sum: orderOrBig(a.Order).Uint32(raw)}
}

// DefaultCRC16Poly is the CCITT polynomial, as used by Dreamcast VMS files.
const DefaultCRC16Poly = 0x1021

// CRC16 is an MSB-first 16-bit CRC without final XOR.
type CRC16 struct {
	Poly  uint16
	Init  uint16
	Order binary.ByteOrder
}

func (CRC16) Name() string { return "crc16" }
func (CRC16) Size() int    { return 2 }

func (c CRC16) Sum(data []byte) Value {
	poly := c.Poly
	if poly == 0 {
		poly = DefaultCRC16Poly
	}

	crc := c.Init
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
	}
	return Value{Algorithm: c.Name(), Sum: uint32(crc)}
}

func (c CRC16) Stored(raw []byte) Value {
	return Value{Algorithm: c.Name(), Sum: uint32(orderOrBig(c.Order).Uint16(raw))}
}

// CRC32 is the IEEE CRC-32.
type CRC32 struct {
	Order binary.ByteOrder
}

func (CRC32) Name() string { return "crc32" }
func (CRC32) Size() int    { return 4 }

func (c CRC32) Sum(data []byte) Value {
	return Value{Algorithm: c.Name(), Sum: crc32.ChecksumIEEE(data)}
}

func (c CRC32) Stored(raw []byte) Value {
	return Value{Algorithm: c.Name(), Sum: orderOrBig(c.Order).Uint32(raw)}
}

func orderOrBig(order binary.ByteOrder) binary.ByteOrder {
	if order == nil {
		return binary.BigEndian
	}
	return order
}
