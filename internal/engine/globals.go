package engine

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// registerIO installs print, console.log, readStr and ask, all routed to
// the engine's Host.
func (e *Engine) registerIO() {
	vm := e.vm
	printFn := func(call goja.FunctionCall) goja.Value {
		e.host.Print(joinArgs(call.Arguments))
		return goja.Undefined()
	}
	vm.Set("print", printFn)

	console := vm.NewObject()
	console.Set("log", printFn)
	console.Set("error", printFn)
	vm.Set("console", console)

	// readStr(prompt) blocks until the owner answers. A stop request while
	// waiting interrupts the script rather than throwing, so try/catch in
	// the script cannot swallow it.
	vm.Set("readStr", func(call goja.FunctionCall) goja.Value {
		text, err := e.host.ReadString(call.Argument(0).String())
		if err != nil {
			vm.Interrupt(err)
			return goja.Undefined()
		}
		return vm.ToValue(text)
	})

	// ask(question) answers 1 for yes, 0 for no and -1 for cancel.
	vm.Set("ask", func(call goja.FunctionCall) goja.Value {
		n, err := e.host.Ask(call.Argument(0).String())
		if err != nil {
			vm.Interrupt(err)
			return goja.Undefined()
		}
		return vm.ToValue(n)
	})
}

func joinArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	return strings.Join(parts, " ")
}

// registerBtoaAtob registers base64 encode/decode globals matching the browser API.
//
// btoa() only accepts Latin-1 strings (every code point <= 0xFF); anything
// else raises InvalidCharacterError as browsers do. Encode UTF-8 text with
// encodeURIComponent first.
func registerBtoaAtob(vm *goja.Runtime) {
	vm.Set("btoa", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}
		runes := []rune(call.Arguments[0].String())
		buf := make([]byte, len(runes))
		for i, r := range runes {
			if r > 0xFF {
				panic(vm.NewGoError(fmt.Errorf("InvalidCharacterError: btoa received a character (U+%04X) outside the Latin-1 range; encode to UTF-8 first with encodeURIComponent", r)))
			}
			buf[i] = byte(r)
		}
		return vm.ToValue(base64.StdEncoding.EncodeToString(buf))
	})

	vm.Set("atob", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}
		decoded, err := base64.StdEncoding.DecodeString(call.Arguments[0].String())
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("atob: %w", err)))
		}
		return vm.ToValue(string(decoded))
	})
}
