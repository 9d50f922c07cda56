// Package config loads goscribe's TOML configuration. The embedded defaults
// are decoded first and the user file is decoded over them, so a user file
// only needs the keys it changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"codeberg.org/sigterm-de/goscribe/assets"
	"codeberg.org/sigterm-de/goscribe/internal/textenc"
	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const appName = "goscribe"

type Editor struct {
	TabWidth        int    `toml:"tab-width"`
	UseTabs         bool   `toml:"use-tabs"`
	SaveNavigation  bool   `toml:"save-navigation"`
	MaxFileSize     int64  `toml:"max-file-size"`
	MaxLineLength   int    `toml:"max-line-length"`
	EOLScanLimit    int    `toml:"eol-scan-limit"`
	IndentScanLines int    `toml:"indent-scan-lines"`
	DefaultEOL      string `toml:"default-eol"`
}

type Run struct {
	PollInterval     time.Duration `toml:"poll-interval"`
	StackBytes       int           `toml:"stack-bytes"`
	MaxStackDepth    int           `toml:"max-stack-depth"`
	MaxScriptSize    int64         `toml:"max-script-size"`
	TransformTimeout time.Duration `toml:"transform-timeout"`
}

type Output struct {
	ReadChunk int `toml:"read-chunk"` // bytes handed to the document per poll
	MaxOutput int `toml:"max-output"` // bytes buffered per process before truncation
}

// Terminal describes how an external terminal is launched. Args is a
// template; see process.BuildTerminalCommand for the placeholders.
type Terminal struct {
	Path  string `toml:"path"`
	Args  string `toml:"args"`
	Shell string `toml:"shell"`
}

// Tool is a named external command run against the current document.
type Tool struct {
	Command      string   `toml:"command"`
	WorkDir      string   `toml:"workdir"`
	Redirect     bool     `toml:"redirect"`
	ErrorPattern string   `toml:"error-pattern"`
	Extensions   []string `toml:"extensions"`
}

type Config struct {
	Editor   Editor          `toml:"editor"`
	Run      Run             `toml:"run"`
	Output   Output          `toml:"output"`
	Terminal Terminal        `toml:"terminal"`
	Tools    map[string]Tool `toml:"tools"`
}

// Default returns the embedded defaults.
func Default() Config {
	var cfg Config
	if _, err := toml.Decode(string(assets.DefaultConfig()), &cfg); err != nil {
		panic("config: embedded defaults: " + err.Error())
	}
	return cfg
}

// Load reads the file at path over the defaults. A missing file is not an
// error. On a malformed file the defaults are returned together with the
// error so the caller can log it and carry on.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	user := Default()
	if _, err := toml.Decode(string(data), &user); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	sanitize(&user)
	return user, nil
}

// sanitize replaces any value that would make a component misbehave with its
// default, so a hand-edited file cannot leave the editor in a broken state.
func sanitize(c *Config) {
	def := Default()
	if c.Editor.TabWidth < 1 || c.Editor.TabWidth > 16 {
		c.Editor.TabWidth = def.Editor.TabWidth
	}
	if c.Editor.MaxFileSize <= 0 {
		c.Editor.MaxFileSize = def.Editor.MaxFileSize
	}
	if c.Editor.MaxLineLength < 0 {
		c.Editor.MaxLineLength = def.Editor.MaxLineLength
	}
	if c.Editor.EOLScanLimit <= 0 {
		c.Editor.EOLScanLimit = def.Editor.EOLScanLimit
	}
	if c.Editor.IndentScanLines <= 0 {
		c.Editor.IndentScanLines = def.Editor.IndentScanLines
	}
	if _, ok := textenc.ParseEOL(c.Editor.DefaultEOL); !ok {
		c.Editor.DefaultEOL = def.Editor.DefaultEOL
	}
	if c.Run.PollInterval < time.Millisecond {
		c.Run.PollInterval = def.Run.PollInterval
	}
	if c.Run.StackBytes <= 0 {
		c.Run.StackBytes = def.Run.StackBytes
	}
	if c.Run.MaxStackDepth <= 0 {
		c.Run.MaxStackDepth = def.Run.MaxStackDepth
	}
	if c.Run.MaxScriptSize <= 0 {
		c.Run.MaxScriptSize = def.Run.MaxScriptSize
	}
	if c.Run.TransformTimeout <= 0 {
		c.Run.TransformTimeout = def.Run.TransformTimeout
	}
	if c.Output.ReadChunk <= 0 {
		c.Output.ReadChunk = def.Output.ReadChunk
	}
	if c.Output.MaxOutput < c.Output.ReadChunk {
		c.Output.MaxOutput = max(def.Output.MaxOutput, c.Output.ReadChunk)
	}
	if c.Terminal.Shell == "" {
		c.Terminal.Shell = def.Terminal.Shell
	}
	for name, t := range c.Tools {
		if t.Command == "" {
			delete(c.Tools, name)
		}
	}
}

// EOL returns the configured default line ending.
func (c Config) EOL() textenc.EOL {
	e, _ := textenc.ParseEOL(c.Editor.DefaultEOL)
	return e
}

// DecodeOptions maps the editor limits onto the load pipeline.
func (c Config) DecodeOptions() textenc.DecodeOptions {
	return textenc.DecodeOptions{
		EOLScanLimit:   c.Editor.EOLScanLimit,
		IndentScanLine: c.Editor.IndentScanLines,
		MaxLineLength:  c.Editor.MaxLineLength,
		DefaultEOL:     c.EOL(),
	}
}

// ToolNames lists the configured tools in sorted order.
func (c Config) ToolNames() []string {
	names := make([]string, 0, len(c.Tools))
	for name := range c.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfigDir is $GOSCRIBE_CONFIG_HOME when set, else the XDG config dir.
func ConfigDir() string {
	if v := os.Getenv("GOSCRIBE_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(xdg.ConfigHome, appName)
}

// UserConfiguration holds the runtime paths resolved from the XDG Base
// Directory specification.
type UserConfiguration struct {
	ConfigFile string // ~/.config/goscribe/config.toml
	ScriptsDir string // ~/.config/goscribe/scripts/
}

// NewUserConfiguration resolves paths and creates the scripts directory if
// absent.
func NewUserConfiguration() (UserConfiguration, error) {
	dir := ConfigDir()
	scriptsDir := filepath.Join(dir, "scripts")
	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		return UserConfiguration{}, fmt.Errorf("config: create scripts dir: %w", err)
	}
	return UserConfiguration{
		ConfigFile: filepath.Join(dir, "config.toml"),
		ScriptsDir: scriptsDir,
	}, nil
}
