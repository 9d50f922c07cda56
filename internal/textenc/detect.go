// Package textenc turns raw file bytes into the editor's UTF-8 text and back.
//
// Detection order is fixed: UTF-8, then UTF-32, then UTF-16, then CP1252,
// else Unknown. UTF-8 goes first so its byte patterns are never read as
// UTF-16; UTF-32 precedes UTF-16 because a UTF-32LE BOM starts with the
// UTF-16LE BOM and UTF-32 text is full of zero 16-bit halves.
package textenc

import (
	"bytes"
	"unicode/utf8"
)

// Encoding identifies a detected byte encoding.
type Encoding int

const (
	Unknown Encoding = iota
	UTF8
	UTF16LE
	UTF16BE
	UTF32LE
	UTF32BE
	CP1252
)

func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "UTF-8"
	case UTF16LE:
		return "UTF-16LE"
	case UTF16BE:
		return "UTF-16BE"
	case UTF32LE:
		return "UTF-32LE"
	case UTF32BE:
		return "UTF-32BE"
	case CP1252:
		return "CP1252"
	default:
		return "unknown"
	}
}

// Family groups the byte-order variants: "UTF-8", "UTF-16", "UTF-32",
// "CP1252" or "unknown".
func (e Encoding) Family() string {
	switch e {
	case UTF16LE, UTF16BE:
		return "UTF-16"
	case UTF32LE, UTF32BE:
		return "UTF-32"
	default:
		return e.String()
	}
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
)

// EncodedBuffer is the immutable result of Detect.
type EncodedBuffer struct {
	Raw      []byte
	Encoding Encoding
	HasBOM   bool
}

// BOMLen returns the number of leading bytes taken by the byte order mark.
func (b EncodedBuffer) BOMLen() int {
	if !b.HasBOM {
		return 0
	}
	switch b.Encoding {
	case UTF8:
		return len(bomUTF8)
	case UTF16LE, UTF16BE:
		return 2
	case UTF32LE, UTF32BE:
		return 4
	}
	return 0
}

// Detect classifies raw. The input slice is not modified and is retained by
// the returned buffer.
func Detect(raw []byte) EncodedBuffer {
	if ok, bom := isUTF8(raw); ok {
		return EncodedBuffer{Raw: raw, Encoding: UTF8, HasBOM: bom}
	}
	if enc, bom, ok := isUTF32(raw); ok {
		return EncodedBuffer{Raw: raw, Encoding: enc, HasBOM: bom}
	}
	if enc, bom, ok := isUTF16(raw); ok {
		return EncodedBuffer{Raw: raw, Encoding: enc, HasBOM: bom}
	}
	if isCP1252(raw) {
		return EncodedBuffer{Raw: raw, Encoding: CP1252}
	}
	return EncodedBuffer{Raw: raw, Encoding: Unknown}
}

// isUTF8 accepts a UTF-8 BOM, or BOM-less data that is valid UTF-8 and free
// of NUL bytes. Text files do not carry NULs; UTF-16/32 text always does.
func isUTF8(b []byte) (ok, bom bool) {
	if bytes.HasPrefix(b, bomUTF8) {
		return utf8.Valid(b[len(bomUTF8):]), true
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return false, false
	}
	return utf8.Valid(b), false
}

// isUTF32 accepts a UTF-32 BOM, or BOM-less data whose every 32-bit unit is
// a non-zero Unicode scalar value for one byte order and at least one unit
// lies in the BMP. That unit carries a zero 16-bit half, which no UTF-16 text
// has, so BOM-less UTF-16 is never read as UTF-32.
func isUTF32(b []byte) (Encoding, bool, bool) {
	switch {
	case bytes.HasPrefix(b, bomUTF32LE):
		return UTF32LE, true, validUTF32(b[4:], false, true)
	case bytes.HasPrefix(b, bomUTF32BE):
		return UTF32BE, true, validUTF32(b[4:], true, true)
	}
	if len(b) == 0 {
		return Unknown, false, false
	}
	if validUTF32(b, false, false) {
		return UTF32LE, false, true
	}
	if validUTF32(b, true, false) {
		return UTF32BE, false, true
	}
	return Unknown, false, false
}

func validUTF32(b []byte, bigEndian, bom bool) bool {
	if len(b)%4 != 0 || (len(b) == 0 && !bom) {
		return false
	}
	bmp := bom
	for i := 0; i < len(b); i += 4 {
		var u uint32
		if bigEndian {
			u = uint32(b[i])<<24 | uint32(b[i+1])<<16 | uint32(b[i+2])<<8 | uint32(b[i+3])
		} else {
			u = uint32(b[i+3])<<24 | uint32(b[i+2])<<16 | uint32(b[i+1])<<8 | uint32(b[i])
		}
		if u == 0 || u > utf8.MaxRune || (u >= 0xD800 && u <= 0xDFFF) {
			return false
		}
		if u <= 0xFFFF {
			bmp = true
		}
	}
	return bmp
}

// isUTF16 accepts a UTF-16 BOM (that is not a UTF-32LE BOM) or BOM-less data
// where zero bytes sit consistently on one side of the 16-bit units.
func isUTF16(b []byte) (Encoding, bool, bool) {
	switch {
	case bytes.HasPrefix(b, bomUTF32LE):
		return Unknown, false, false
	case bytes.HasPrefix(b, bomUTF16LE):
		return UTF16LE, true, wellFormedUTF16(b[2:], false)
	case bytes.HasPrefix(b, bomUTF16BE):
		return UTF16BE, true, wellFormedUTF16(b[2:], true)
	}
	if len(b) < 2 || len(b)%2 != 0 {
		return Unknown, false, false
	}
	// Zero high bytes land on odd offsets for little endian, even for big.
	var zeroEven, zeroOdd int
	for i := 0; i < len(b); i += 2 {
		if b[i] == 0 {
			zeroEven++
		}
		if b[i+1] == 0 {
			zeroOdd++
		}
	}
	units := len(b) / 2
	switch {
	case zeroOdd*2 >= units && zeroEven*10 <= units && wellFormedUTF16(b, false):
		return UTF16LE, false, true
	case zeroEven*2 >= units && zeroOdd*10 <= units && wellFormedUTF16(b, true):
		return UTF16BE, false, true
	}
	return Unknown, false, false
}

// wellFormedUTF16 rejects odd lengths, NUL units, C1 controls and unpaired
// surrogates.
func wellFormedUTF16(b []byte, bigEndian bool) bool {
	if len(b)%2 != 0 {
		return false
	}
	unit := func(i int) uint16 {
		if bigEndian {
			return uint16(b[i])<<8 | uint16(b[i+1])
		}
		return uint16(b[i+1])<<8 | uint16(b[i])
	}
	for i := 0; i < len(b); i += 2 {
		u := unit(i)
		switch {
		case u == 0:
			return false
		case u < 0x20 && u != '\t' && u != '\n' && u != '\r' && u != '\f':
			return false
		case u >= 0x7F && u <= 0x9F:
			return false
		case u >= 0xD800 && u <= 0xDBFF:
			if i+3 >= len(b) {
				return false
			}
			if lo := unit(i + 2); lo < 0xDC00 || lo > 0xDFFF {
				return false
			}
			i += 2
		case u >= 0xDC00 && u <= 0xDFFF:
			return false
		}
	}
	return true
}

// undefinedCP1252 are the five byte values Windows-1252 leaves unassigned.
var undefinedCP1252 = [256]bool{0x81: true, 0x8D: true, 0x8F: true, 0x90: true, 0x9D: true}

// isCP1252 accepts data that is not UTF-8, contains at least one high byte,
// uses only assigned CP1252 code points and no control bytes besides
// whitespace.
func isCP1252(b []byte) bool {
	if utf8.Valid(b) {
		return false
	}
	high := 0
	for _, c := range b {
		switch {
		case c >= 0x80:
			if undefinedCP1252[c] {
				return false
			}
			high++
		case c < 0x20 && c != '\t' && c != '\n' && c != '\r' && c != '\f':
			return false
		case c == 0x7F:
			return false
		}
	}
	return high > 0
}
