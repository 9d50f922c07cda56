package scripts

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"codeberg.org/sigterm-de/goscribe/internal/errs"
	"codeberg.org/sigterm-de/goscribe/internal/logging"
)

// LoadResult is everything found by Load.
type LoadResult struct {
	Scripts []Script
	Skipped []string // files that are not valid scripts
	Bundled int
	User    int
}

// Loader reads the bundled scripts and a user directory. Bad files are
// logged and skipped; only an unreadable bundle is an error.
type Loader struct {
	bundled fs.FS
	maxSize int64
}

// NewLoader returns a Loader over bundled, normally assets.Scripts(). User
// scripts larger than maxSize bytes are skipped; 0 disables the check.
func NewLoader(bundled fs.FS, maxSize int64) *Loader {
	return &Loader{bundled: bundled, maxSize: maxSize}
}

func (l *Loader) Load(userDir string) (LoadResult, error) {
	var res LoadResult
	if err := l.loadBundled(&res); err != nil {
		return res, err
	}
	if userDir != "" {
		l.loadUser(userDir, &res)
	}
	logging.Log(logging.INFO, "scripts", "loaded", "bundled", res.Bundled, "user", res.User, "skipped", len(res.Skipped))
	return res, nil
}

func (l *Loader) loadBundled(res *LoadResult) error {
	return fs.WalkDir(l.bundled, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// lib/ holds @goscribe/ modules, not scripts
		if d.IsDir() {
			if d.Name() == "lib" {
				return fs.SkipDir
			}
			return nil
		}
		if path.Ext(p) != ".js" {
			return nil
		}
		data, err := fs.ReadFile(l.bundled, p)
		if err != nil {
			return err
		}
		l.add(res, string(data), "embedded:"+p, Bundled)
		return nil
	})
}

func (l *Loader) loadUser(dir string, res *LoadResult) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Log(logging.INFO, "scripts", "no user scripts dir", "dir", dir)
		} else {
			logging.Log(logging.WARN, "scripts", "cannot read user scripts dir", "dir", dir, "error", err)
		}
		return
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".js" {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if info, err := e.Info(); err == nil && l.maxSize > 0 && info.Size() > l.maxSize {
			err := &errs.SizeLimitError{What: "script", Size: info.Size(), Limit: l.maxSize}
			logging.Log(logging.WARN, "scripts", "skipping", "file", p, "error", err)
			res.Skipped = append(res.Skipped, p)
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			logging.Log(logging.WARN, "scripts", "cannot read", "file", p, "error", err)
			res.Skipped = append(res.Skipped, p)
			continue
		}
		l.add(res, string(data), p, User)
	}
}

func (l *Loader) add(res *LoadResult, content, p string, origin Origin) {
	s, err := ParseHeader(content)
	if err != nil {
		logging.Log(logging.WARN, "scripts", "skipping", "file", p, "error", err)
		res.Skipped = append(res.Skipped, p)
		return
	}
	s.Origin, s.Path = origin, p
	res.Scripts = append(res.Scripts, s)
	if origin == Bundled {
		res.Bundled++
	} else {
		res.User++
	}
}
