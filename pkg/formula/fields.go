package formula

import (
	"regexp"
	"strings"
)

// reservedNames are identifiers that are never reported as column
// references when written bare (a backtick-quoted name is always a
// column): the dialect's function names and literal keywords. The
// table deliberately includes common spreadsheet functions beyond the
// implemented set so that a stray VLOOKUP never masquerades as a column.
var reservedNames = map[string]bool{
	"IF": true, "AND": true, "OR": true, "NOT": true, "IN": true,
	"TRUE": true, "FALSE": true,
	"ISBLANK": true, "ISNUMBER": true, "ISTEXT": true, "ISERROR": true,
	"COUNTIF": true, "SUM": true, "AVERAGE": true, "MIN": true, "MAX": true,
	"COUNT": true,
	"LEN":   true, "LEFT": true, "RIGHT": true, "MID": true,
	"UPPER": true, "LOWER": true, "TRIM": true, "PROPER": true,
	"TEXT": true, "VALUE": true, "CONCATENATE": true,
	"TODAY": true, "NOW": true, "DATE": true, "DATEVALUE": true,
	"VLOOKUP": true, "HLOOKUP": true, "INDEX": true, "MATCH": true,
}

// IsReserved reports whether name is blocked from being a column
// reference result.
func IsReserved(name string) bool {
	return reservedNames[strings.ToUpper(name)]
}

// Fields returns the column names referenced by the AST, in first-use
// order with duplicates removed. Bare reserved names are never
// returned; backtick-quoted names always are.
func Fields(expr Expr) []string {
	var fields []string
	seen := make(map[string]bool)
	Walk(expr, func(e Expr) bool {
		if ref, ok := e.(*ColumnRef); ok {
			// Backtick-quoted names are explicit column references even
			// when they collide with a function name.
			if (ref.Quoted || !IsReserved(ref.Name)) && !seen[ref.Name] {
				seen[ref.Name] = true
				fields = append(fields, ref.Name)
			}
		}
		return true
	})
	return fields
}

// fieldPattern matches, in order of preference, a backtick-quoted
// identifier, a string literal (with doubled-quote escapes), or a bare
// identifier.
var fieldPattern = regexp.MustCompile("`[^`]*`" + `|"(?:[^"]|"")*"|[A-Za-z_][A-Za-z0-9_]*`)

// ExtractFields is the lightweight pre-parse field extractor used for
// quick-fail configuration validation. On any parseable formula it
// agrees exactly with Fields over the parsed AST.
func ExtractFields(input string) []string {
	var fields []string
	seen := make(map[string]bool)

	for _, loc := range fieldPattern.FindAllStringIndex(input, -1) {
		match := input[loc[0]:loc[1]]

		switch match[0] {
		case '"':
			// String literal
			continue
		case '`':
			name := match[1 : len(match)-1]
			if !seen[name] {
				seen[name] = true
				fields = append(fields, name)
			}
			continue
		}

		// Bare identifier: skip reserved names and function names
		// (identifier followed by an opening parenthesis).
		if IsReserved(match) || followedByParen(input, loc[1]) {
			continue
		}
		if !seen[match] {
			seen[match] = true
			fields = append(fields, match)
		}
	}

	return fields
}

// followedByParen reports whether the next non-blank character at or
// after offset is an opening parenthesis.
func followedByParen(s string, offset int) bool {
	for i := offset; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		case '(':
			return true
		default:
			return false
		}
	}
	return false
}
