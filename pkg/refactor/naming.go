package refactor

import (
	"go/token"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultFallbackName is used when an expression contains no letters.
const DefaultFallbackName = "newField"

var lower = cases.Lower(language.Und)

// Synthesize derives an identifier from expression text: the text is
// lower-cased and everything but letters is dropped. Text without letters
// yields DefaultFallbackName. The result is not checked against names in
// scope; see Disambiguate.
func Synthesize(expressionText string) string {
	return SynthesizeWithFallback(expressionText, DefaultFallbackName)
}

// SynthesizeWithFallback is Synthesize with a caller-chosen fallback.
func SynthesizeWithFallback(expressionText, fallback string) string {
	var b strings.Builder
	for _, r := range lower.String(expressionText) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}

// Disambiguate returns name, or name followed by the smallest numeric
// suffix starting at 1 that is not taken. Go keywords and predeclared
// identifiers always count as taken.
func Disambiguate(name string, taken map[string]bool) string {
	if !reserved(name, taken) {
		return name
	}
	for i := 1; ; i++ {
		candidate := name + strconv.Itoa(i)
		if !reserved(candidate, taken) {
			return candidate
		}
	}
}

func reserved(name string, taken map[string]bool) bool {
	return taken[name] || token.IsKeyword(name) || predeclared[name]
}

// Exported upper-cases the first rune of name.
func Exported(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

var predeclared = map[string]bool{
	"any": true, "bool": true, "byte": true, "comparable": true,
	"complex64": true, "complex128": true, "error": true, "float32": true,
	"float64": true, "int": true, "int8": true, "int16": true,
	"int32": true, "int64": true, "rune": true, "string": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true,
	"uint64": true, "uintptr": true,

	"true": true, "false": true, "iota": true, "nil": true,

	"append": true, "cap": true, "clear": true, "close": true,
	"complex": true, "copy": true, "delete": true, "imag": true,
	"len": true, "make": true, "max": true, "min": true, "new": true,
	"panic": true, "print": true, "println": true, "real": true,
	"recover": true,
}
