// Package scripts finds stored transform scripts, bundled and user
// provided, and searches them by name and tag.
package scripts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Origin tells bundled scripts from the user's own.
type Origin int

const (
	Bundled Origin = iota
	User
)

func (o Origin) String() string {
	if o == Bundled {
		return "bundled"
	}
	return "user"
}

// Script is one stored script and its /**! header.
type Script struct {
	Name        string
	Description string
	Tags        []string
	Bias        float64 // lower sorts earlier
	Origin      Origin
	Path        string // "embedded:<name>" for bundled scripts
	Content     string
}

// ErrNoHeader marks files that are not stored scripts.
var ErrNoHeader = errors.New("missing /**! header")

// ParseHeader reads the /**! block at the top of content. Recognised keys
// are @name, @description, @tags (comma separated) and @bias; others are
// ignored. @name and @description are required.
func ParseHeader(content string) (Script, error) {
	s := Script{Content: content, Tags: []string{}}

	body := strings.TrimPrefix(content, "\xef\xbb\xbf")
	if !strings.HasPrefix(body, "/**!") {
		return s, ErrNoHeader
	}
	end := strings.Index(body, "*/")
	if end < 0 {
		return s, fmt.Errorf("unclosed /**! header")
	}

	for line := range strings.SplitSeq(body[4:end], "\n") {
		line = strings.TrimLeft(line, " \t")
		line = strings.TrimLeft(strings.TrimPrefix(line, "*"), " \t")
		i := strings.IndexAny(line, " \t")
		if i < 0 || !strings.HasPrefix(line, "@") {
			continue
		}
		key, val := line[:i], strings.TrimSpace(line[i:])
		switch key[1:] {
		case "name":
			s.Name = val
		case "description":
			s.Description = val
		case "tags":
			for tag := range strings.SplitSeq(val, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					s.Tags = append(s.Tags, tag)
				}
			}
		case "bias":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				s.Bias = f
			}
		}
	}

	switch {
	case s.Name == "":
		return s, fmt.Errorf("header has no @name")
	case s.Description == "":
		return s, fmt.Errorf("header has no @description")
	}
	return s, nil
}
