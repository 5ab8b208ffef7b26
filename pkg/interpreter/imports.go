package interpreter

import (
	"go/scanner"
	"go/token"
	"strconv"
	"strings"
)

// importSpec is one import of a snippet. Name is empty, "." or "_" or an
// explicit alias.
type importSpec struct {
	Name string
	Path string
}

func (s importSpec) String() string {
	if s.Name == "" {
		return "import " + strconv.Quote(s.Path)
	}
	return "import " + s.Name + " " + strconv.Quote(s.Path)
}

// splitImports separates the leading import declarations of a snippet from
// the statements that follow. The interpreter decides between file scope
// and statement scope by the first token, so a snippet that starts with
// imports and continues with statements has to be evaluated in two steps.
// When the leading imports cannot be scanned the whole snippet is returned
// as body and the interpreter reports the error.
func splitImports(src string) ([]importSpec, string) {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))

	var s scanner.Scanner
	s.Init(file, []byte(src), nil, 0)

	var specs []importSpec
	end := 0
	for {
		_, tok, _ := s.Scan()
		if tok == token.SEMICOLON {
			continue
		}
		if tok != token.IMPORT {
			break
		}
		decl, declEnd, ok := scanImportDecl(&s, file)
		if !ok {
			return nil, src
		}
		specs = append(specs, decl...)
		end = declEnd
	}
	return specs, src[end:]
}

func scanImportDecl(s *scanner.Scanner, file *token.File) ([]importSpec, int, bool) {
	pos, tok, lit := s.Scan()
	if tok != token.LPAREN {
		spec, end, ok := scanImportSpec(s, file, pos, tok, lit)
		if !ok {
			return nil, 0, false
		}
		return []importSpec{spec}, end, true
	}

	var specs []importSpec
	for {
		pos, tok, lit = s.Scan()
		switch tok {
		case token.SEMICOLON:
			continue
		case token.RPAREN:
			return specs, file.Offset(pos) + 1, true
		case token.EOF:
			return nil, 0, false
		}
		spec, _, ok := scanImportSpec(s, file, pos, tok, lit)
		if !ok {
			return nil, 0, false
		}
		specs = append(specs, spec)
	}
}

func scanImportSpec(s *scanner.Scanner, file *token.File, pos token.Pos, tok token.Token, lit string) (importSpec, int, bool) {
	var spec importSpec
	switch tok {
	case token.IDENT:
		spec.Name = lit
		pos, tok, lit = s.Scan()
	case token.PERIOD:
		spec.Name = "."
		pos, tok, lit = s.Scan()
	}
	if tok != token.STRING {
		return spec, 0, false
	}
	path, err := strconv.Unquote(lit)
	if err != nil || path == "" {
		return spec, 0, false
	}
	spec.Path = path
	return spec, file.Offset(pos) + len(lit), true
}

// importSource renders the specs not in seen as import declarations and
// returns their keys. seen is not modified.
func importSource(specs []importSpec, seen map[string]bool) (string, []string) {
	var b strings.Builder
	var keys []string
	local := make(map[string]bool, len(specs))
	for _, spec := range specs {
		key := spec.String()
		if seen[key] || local[key] {
			continue
		}
		local[key] = true
		keys = append(keys, key)
		b.WriteString(key)
		b.WriteByte('\n')
	}
	return b.String(), keys
}
