package scripts

import (
	"cmp"
	"slices"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Library is a sorted, searchable set of scripts: by Bias, then bundled
// before user, then case-insensitive name.
type Library struct {
	sorted []Script
}

func NewLibrary(res LoadResult) *Library {
	s := slices.Clone(res.Scripts)
	slices.SortStableFunc(s, func(a, b Script) int {
		return cmp.Or(
			cmp.Compare(a.Bias, b.Bias),
			cmp.Compare(a.Origin, b.Origin),
			cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
		)
	})
	return &Library{sorted: s}
}

func (l *Library) All() []Script { return slices.Clone(l.sorted) }

func (l *Library) Len() int { return len(l.sorted) }

// Search matches query fuzzily against each script's name and tags, best
// match first. An empty query returns All; no match returns an empty,
// non-nil slice.
func (l *Library) Search(query string) []Script {
	if query == "" {
		return l.All()
	}
	matches := fuzzy.FindFrom(query, searchable(l.sorted))
	out := make([]Script, 0, len(matches))
	for _, m := range matches {
		out = append(out, l.sorted[m.Index])
	}
	return out
}

// Find returns the first script whose name equals name, ignoring case.
// User scripts shadow bundled ones of the same name.
func (l *Library) Find(name string) (Script, bool) {
	var found Script
	ok := false
	for _, s := range l.sorted {
		if !strings.EqualFold(s.Name, name) {
			continue
		}
		if !ok || s.Origin == User {
			found, ok = s, true
		}
	}
	return found, ok
}

// searchable is the fuzzy.Source over names and tags.
type searchable []Script

func (s searchable) String(i int) string {
	if len(s[i].Tags) == 0 {
		return s[i].Name
	}
	return s[i].Name + " " + strings.Join(s[i].Tags, " ")
}

func (s searchable) Len() int { return len(s) }
