package engine

import (
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/dop251/goja/ast"
)

var (
	astPkg        = reflect.TypeOf(ast.Program{}).PkgPath()
	statementType = reflect.TypeOf((*ast.Statement)(nil)).Elem()
)

// instrument returns src with a call to hook(line) in front of every
// statement that appears in a statement list (program body, blocks, case
// clauses). Calls are inserted on the statement's own line and no newline
// is added, so line numbers in the result match src.
//
// Function and class declarations are skipped, as are directive prologues
// such as "use strict".
func instrument(prog *ast.Program, src string, hook string) string {
	w := walker{seen: make(map[uintptr]bool), src: src}
	w.visit(reflect.ValueOf(prog))

	offsets := make([]int, 0, len(w.points))
	for off := range w.points {
		offsets = append(offsets, off)
	}
	slices.Sort(offsets)

	lineStarts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}

	var b strings.Builder
	b.Grow(len(src) + len(offsets)*(len(hook)+8))
	prev := 0
	for _, off := range offsets {
		if off < prev || off > len(src) {
			continue
		}
		b.WriteString(src[prev:off])
		line, _ := slices.BinarySearch(lineStarts, off+1)
		b.WriteString(hook)
		b.WriteByte('(')
		b.WriteString(strconv.Itoa(line))
		b.WriteString(");")
		prev = off
	}
	b.WriteString(src[prev:])
	return b.String()
}

type walker struct {
	points map[int]bool
	seen   map[uintptr]bool
	src    string
}

// visit descends through goja ast values only.
func (w *walker) visit(v reflect.Value) {
	switch v.Kind() {
	case reflect.Interface:
		if !v.IsNil() {
			w.visit(v.Elem())
		}
	case reflect.Pointer:
		if v.IsNil() || v.Type().Elem().PkgPath() != astPkg {
			return
		}
		if w.seen[v.Pointer()] {
			return
		}
		w.seen[v.Pointer()] = true
		w.visit(v.Elem())
	case reflect.Struct:
		if v.Type().PkgPath() != astPkg {
			return
		}
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			f := v.Field(i)
			if f.Kind() == reflect.Slice && f.Type().Elem() == statementType {
				w.statements(f)
			}
			w.visit(f)
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			w.visit(v.Index(i))
		}
	}
}

func (w *walker) statements(list reflect.Value) {
	for i := 0; i < list.Len(); i++ {
		elem := list.Index(i)
		if elem.IsNil() {
			continue
		}
		stmt := elem.Interface().(ast.Statement)
		if !hookable(stmt) {
			continue
		}
		if w.points == nil {
			w.points = make(map[int]bool)
		}
		w.points[w.statementStart(int(stmt.Idx0())-1)] = true
	}
}

// statementStart moves off back over the opening parentheses that Idx0
// leaves out for statements like "(a || b).run()".
func (w *walker) statementStart(off int) int {
	start := off
	for k := off - 1; k >= 0 && k < len(w.src); k-- {
		switch w.src[k] {
		case '(':
			start = k
		case ' ', '\t', '\r', '\n':
		default:
			return start
		}
	}
	return start
}

func hookable(stmt ast.Statement) bool {
	switch s := stmt.(type) {
	case *ast.FunctionDeclaration, *ast.ClassDeclaration, *ast.EmptyStatement, *ast.BadStatement:
		return false
	case *ast.ExpressionStatement:
		_, directive := s.Expression.(*ast.StringLiteral)
		return !directive
	}
	return true
}
