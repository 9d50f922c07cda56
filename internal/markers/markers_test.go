package markers

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeExactBytes(t *testing.T) {
	got, err := Encode(File{Lines: []byte{0x00, 0x02, 0x01 | 0x08}, SelStart: 0x010203, SelEnd: 300})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x96,
		0x10, 0x03, 0x00, 0x00, 0x00, 0x02, 0x09,
		0x20, 0x03, 0x02, 0x01, 0x2c, 0x01, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode = % x\nwant     % x", got, want)
	}
}

func TestDecode(t *testing.T) {
	data := []byte{0x96, 0x20, 5, 0, 0, 9, 0, 0, 0x10, 2, 0, 0, 0x02, 0x10}
	f, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Lines, []byte{0x02, 0x10}) || f.SelStart != 5 || f.SelEnd != 9 {
		t.Errorf("Decode = %+v", f)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	cases := map[string][]byte{
		"empty":         nil,
		"bad header":    {0x95, 0x10, 0, 0, 0},
		"short count":   {0x96, 0x10, 1},
		"short body":    {0x96, 0x10, 4, 0, 0, 1, 2},
		"short select":  {0x96, 0x20, 1, 0, 0, 2},
		"unknown block": {0x96, 0x30},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(data); !errors.Is(err, ErrCorrupt) {
				t.Errorf("err = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestEncodeLimits(t *testing.T) {
	if _, err := Encode(File{SelEnd: 1 << 24}); err == nil {
		t.Error("selection past 24 bits should be rejected")
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "script.lua")
	if got := CompanionPath(doc); got != filepath.Join(dir, ".script.lua.nav") {
		t.Errorf("CompanionPath = %q", got)
	}
	if _, err := Load(doc); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load without file: %v", err)
	}
	in := File{Lines: []byte{0, 0, 0, 0, 0x02}, SelStart: 3, SelEnd: 7}
	if err := Save(doc, in); err != nil {
		t.Fatal(err)
	}
	out, err := Load(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Lines, in.Lines) || out.SelStart != 3 || out.SelEnd != 7 {
		t.Errorf("Load = %+v, want %+v", out, in)
	}
}
