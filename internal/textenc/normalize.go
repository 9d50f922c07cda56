package textenc

import (
	"fmt"

	"codeberg.org/sigterm-de/goscribe/internal/errs"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// codec returns the x/text encoding for e. The BOM is handled by the caller,
// so every codec ignores it.
func codec(e Encoding) encoding.Encoding {
	switch e {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case UTF32LE:
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	case UTF32BE:
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
	case CP1252:
		return charmap.Windows1252
	default:
		return encoding.Nop
	}
}

// Normalize decodes buf into UTF-8 text without a BOM. Unknown buffers are
// passed through unchanged on the assumption that they are mostly UTF-8;
// the returned error then wraps errs.ErrEncoding as a warning and the text
// is still usable.
func Normalize(buf EncodedBuffer) (string, error) {
	body := buf.Raw[buf.BOMLen():]
	switch buf.Encoding {
	case UTF8:
		return string(body), nil
	case Unknown:
		return string(body), fmt.Errorf("textenc: %w: treating as UTF-8", errs.ErrEncoding)
	}
	out, err := codec(buf.Encoding).NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("textenc: decode %s: %w", buf.Encoding, err)
	}
	return string(out), nil
}

// Encode converts UTF-8 text back to enc, prepending a BOM when bom is set.
// Unknown encodes as UTF-8.
func Encode(text string, enc Encoding, bom bool) ([]byte, error) {
	var prefix []byte
	if bom {
		switch enc {
		case UTF8:
			prefix = bomUTF8
		case UTF16LE:
			prefix = bomUTF16LE
		case UTF16BE:
			prefix = bomUTF16BE
		case UTF32LE:
			prefix = bomUTF32LE
		case UTF32BE:
			prefix = bomUTF32BE
		}
	}
	if enc == UTF8 || enc == Unknown {
		return append(append([]byte{}, prefix...), text...), nil
	}
	body, err := codec(enc).NewEncoder().String(text)
	if err != nil {
		return nil, fmt.Errorf("textenc: encode %s: %w", enc, err)
	}
	return append(append([]byte{}, prefix...), body...), nil
}
