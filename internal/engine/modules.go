package engine

import (
	"bytes"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"codeberg.org/sigterm-de/goscribe/assets"
	"codeberg.org/sigterm-de/goscribe/internal/lang"
	"github.com/BurntSushi/toml"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"gopkg.in/yaml.v3"
	"howett.net/plist"
)

// modulePrefix is the only require() namespace scripts can reach.
const modulePrefix = "@goscribe/"

// libFS serves scripts/lib/*.js as @goscribe/ modules.
var libFS = sync.OnceValue(func() fs.FS {
	sub, err := fs.Sub(assets.Scripts(), "lib")
	if err != nil {
		return nil
	}
	return sub
})

// defaultLanguages is used when the engine is built without a table.
var defaultLanguages = sync.OnceValue(func() *lang.Table {
	t, err := lang.Default()
	if err != nil {
		t, _ = lang.Parse(nil)
	}
	return t
})

// codec is a data format exposed as parse/stringify. Extra names alias
// parse, e.g. plist.parseBinary.
type codec struct {
	parse     func([]byte) (any, error)
	stringify func(any) ([]byte, error)
	aliases   []string
}

var codecs = map[string]codec{
	"yaml": {
		parse: func(b []byte) (any, error) {
			var out any
			err := yaml.Unmarshal(b, &out)
			return out, err
		},
		stringify: yaml.Marshal,
	},
	"plist": {
		// plist.Unmarshal sniffs XML, binary and OpenStep itself.
		parse: func(b []byte) (any, error) {
			var out any
			_, err := plist.Unmarshal(b, &out)
			return out, err
		},
		stringify: func(v any) ([]byte, error) { return plist.MarshalIndent(v, plist.XMLFormat, "\t") },
		aliases:   []string{"parseBinary"},
	},
	"toml": {
		parse: func(b []byte) (any, error) {
			var out map[string]any
			_, err := toml.Decode(string(b), &out)
			return out, err
		},
		stringify: func(v any) ([]byte, error) {
			var buf bytes.Buffer
			err := toml.NewEncoder(&buf).Encode(v)
			return buf.Bytes(), err
		},
	},
}

// registerModules installs the native @goscribe/ modules: one per codec plus
// lang, which answers from langs. Every other require() path fails with
// "cannot find module".
func registerModules(registry *require.Registry, langs *lang.Table) {
	for name, c := range codecs {
		registry.RegisterNativeModule(modulePrefix+name, c.loader(name))
	}
	registry.RegisterNativeModule(modulePrefix+"lang", langLoader(langs))
}

func (c codec) loader(name string) require.ModuleLoader {
	return func(vm *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)
		parse := func(call goja.FunctionCall) goja.Value {
			src := requireArg(vm, call, name+".parse")
			out, err := c.parse([]byte(src.String()))
			if err != nil {
				panic(vm.NewGoError(fmt.Errorf("%s.parse: %w", name, err)))
			}
			return vm.ToValue(stringKeys(out))
		}
		exports.Set("parse", parse)
		for _, alias := range c.aliases {
			exports.Set(alias, parse)
		}
		exports.Set("stringify", func(call goja.FunctionCall) goja.Value {
			v := requireArg(vm, call, name+".stringify").Export()
			b, err := c.stringify(v)
			if err != nil {
				panic(vm.NewGoError(fmt.Errorf("%s.stringify: %w", name, err)))
			}
			return vm.ToValue(string(b))
		})
	}
}

// langLoader exposes the language table: lookup(tag), forFile(name,
// content), tags(), toggleComment(tag, lines) and indentAfter(tag, prev,
// unit). Unknown tags behave as plain text.
func langLoader(langs *lang.Table) require.ModuleLoader {
	byTag := func(tag string) lang.Language {
		if l, ok := langs.Lookup(tag); ok {
			return l
		}
		return lang.Plain
	}
	return func(vm *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)
		exports.Set("lookup", func(tag string) any {
			l, ok := langs.Lookup(tag)
			if !ok {
				return nil
			}
			return languageObject(l)
		})
		exports.Set("forFile", func(name, content string) any {
			return languageObject(langs.ForFile(name, content))
		})
		exports.Set("tags", func() []string { return langs.Tags() })
		exports.Set("toggleComment", func(tag string, lines []string) []string {
			return byTag(tag).ToggleComment(lines)
		})
		exports.Set("indentAfter", func(tag, prev, unit string) string {
			return byTag(tag).IndentAfter(prev, unit)
		})
	}
}

func languageObject(l lang.Language) map[string]any {
	return map[string]any{
		"tag":        l.Tag,
		"name":       l.Name,
		"comment":    l.CommentPrefix,
		"extensions": l.Extensions,
		"runnable":   l.Runnable,
	}
}

func requireArg(vm *goja.Runtime, call goja.FunctionCall, fn string) goja.Value {
	if len(call.Arguments) == 0 {
		panic(vm.NewTypeError(fn + " requires an argument"))
	}
	return call.Arguments[0]
}

// stringKeys turns the map[any]any yaml.v3 produces for non-string keys
// into map[string]any so goja exposes a plain object.
func stringKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, vv := range val {
			val[k] = stringKeys(vv)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[fmt.Sprint(k)] = stringKeys(vv)
		}
		return out
	case []any:
		for i, vv := range val {
			val[i] = stringKeys(vv)
		}
		return val
	default:
		return val
	}
}

// blockingRequireLoader serves lib/*.js for @goscribe/ paths and rejects
// everything else. goja_nodejs resolves require("@goscribe/foo") to
// "node_modules/@goscribe/foo", possibly with a .js suffix.
func blockingRequireLoader(path string) ([]byte, error) {
	name, ok := strings.CutPrefix(strings.TrimPrefix(path, "node_modules/"), modulePrefix)
	if !ok {
		return nil, fmt.Errorf("cannot find module '%s'", path)
	}
	if lib := libFS(); lib != nil {
		if data, err := fs.ReadFile(lib, strings.TrimSuffix(name, ".js")+".js"); err == nil {
			return data, nil
		}
	}
	// falls through to the native modules
	return nil, require.ModuleFileDoesNotExistError
}
