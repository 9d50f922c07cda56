package textenc

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"codeberg.org/sigterm-de/goscribe/internal/errs"
	"go.uber.org/multierr"
)

// ReadFile reads path after checking its size against maxBytes. An
// oversized file is refused without being read.
func ReadFile(path string, maxBytes int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("textenc: %w", err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, fmt.Errorf("textenc: %s: %w", path, &errs.SizeLimitError{What: "file", Size: info.Size(), Limit: maxBytes})
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("textenc: %w", err)
	}
	return data, nil
}

// DecodeOptions bound the scans Decode performs.
type DecodeOptions struct {
	EOLScanLimit   int // bytes inspected for line endings
	IndentScanLine int // lines inspected for indentation
	MaxLineLength  int // longest accepted line in bytes; 0 disables the check
	DefaultEOL     EOL
}

// Decoded is a fully converted document, ready to be swapped into a buffer.
type Decoded struct {
	Lines       []string
	TrailingEOL bool
	Encoding    Encoding
	HasBOM      bool
	EOL         EOLReport
	Indent      IndentGuess
	// Warning is non-nil for conditions recovered locally: an unknown
	// encoding (wraps errs.ErrEncoding), mixed line endings (ErrMixedEOL),
	// or both combined.
	Warning error
}

// ErrMixedEOL is reported in Decoded.Warning when line endings were unified.
var ErrMixedEOL = errors.New("mixed line endings normalized")

// Decode runs the whole load pipeline over raw: detect, normalize to UTF-8,
// unify line endings to the majority style, split and infer indentation.
// Nothing is returned on failure, so callers never see partial text.
func Decode(raw []byte, opts DecodeOptions) (Decoded, error) {
	buf := Detect(raw)
	text, err := Normalize(buf)
	var warn error
	if err != nil {
		if !errors.Is(err, errs.ErrEncoding) {
			return Decoded{}, err
		}
		warn = err
	}

	report := DetectEOL(text, opts.EOLScanLimit, opts.DefaultEOL)
	if report.Mixed {
		warn = multierr.Append(warn, fmt.Errorf("textenc: %w to %s", ErrMixedEOL, report.Mode))
	}
	text = NormalizeEOL(text, report.Mode)
	lines := SplitLines(text, report.Mode)

	if opts.MaxLineLength > 0 {
		for _, l := range lines {
			if len(l) > opts.MaxLineLength {
				return Decoded{}, fmt.Errorf("textenc: %w", &errs.SizeLimitError{What: "line", Size: int64(len(l)), Limit: int64(opts.MaxLineLength)})
			}
		}
	}

	return Decoded{
		Lines:       lines,
		TrailingEOL: strings.HasSuffix(text, report.Mode.Terminator()),
		Encoding:    buf.Encoding,
		HasBOM:      buf.HasBOM,
		EOL:         report,
		Indent:      InferIndent(lines, opts.IndentScanLine),
		Warning:     warn,
	}, nil
}
