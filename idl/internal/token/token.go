package token

import (
	"strings"
	"unicode"
)

type Type int

const (
	Ident   Type = iota // identifier or keyword
	Escaped             // %-escaped identifier, never a keyword
	Version             // digit-led semver or number
	Punct
	Doc
	Invalid
)

func (t Type) String() string {
	switch t {
	case Ident:
		return "identifier"
	case Escaped:
		return "identifier"
	case Version:
		return "version"
	case Punct:
		return "punctuation"
	case Doc:
		return "doc comment"
	case Invalid:
		return "invalid character"
	}
	return "unknown"
}

type Token struct {
	Value string
	Type  Type
	Line  int
}

// IsName reports whether the token can be used as an identifier.
func (t Token) IsName() bool {
	return t.Type == Ident || t.Type == Escaped
}

// Is reports whether the token is the given keyword or punctuation.
func (t Token) Is(v string) bool {
	return (t.Type == Ident || t.Type == Punct) && t.Value == v
}

func Tokenize(input string) []Token {
	var tokens []Token
	line := 1
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			line++
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}

		if r == '/' && i+1 < len(runes) && runes[i+1] == '/' {
			doc := i+2 < len(runes) && runes[i+2] == '/' && (i+3 >= len(runes) || runes[i+3] != '/')
			start := i
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			if doc {
				text := strings.TrimSpace(string(runes[start+3 : i]))
				tokens = append(tokens, Token{text, Doc, line})
			}
			line++
			continue
		}

		if r == '/' && i+1 < len(runes) && runes[i+1] == '*' {
			depth := 1
			i += 2
			for i < len(runes) && depth > 0 {
				switch {
				case runes[i] == '/' && i+1 < len(runes) && runes[i+1] == '*':
					depth++
					i++
				case runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/':
					depth--
					i++
				case runes[i] == '\n':
					line++
				}
				i++
			}
			i--
			continue
		}

		if r == '-' && i+1 < len(runes) && runes[i+1] == '>' {
			tokens = append(tokens, Token{"->", Punct, line})
			i++
			continue
		}

		if strings.ContainsRune(":;,.{}()<>=@/*_", r) && !(r == '_' && i+1 < len(runes) && isIdentRune(runes[i+1])) {
			tokens = append(tokens, Token{string(r), Punct, line})
			continue
		}

		if unicode.IsDigit(r) {
			start := i
			for i < len(runes) && (isIdentRune(runes[i]) || runes[i] == '.' || runes[i] == '+') {
				i++
			}
			// a trailing '.' belongs to a use path: ns:pkg/iface@1.0.0.{t}
			if runes[i-1] == '.' {
				i--
			}
			tokens = append(tokens, Token{string(runes[start:i]), Version, line})
			i--
			continue
		}

		if r == '%' || unicode.IsLetter(r) {
			typ := Ident
			if r == '%' {
				typ = Escaped
				i++
			}
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			tokens = append(tokens, Token{string(runes[start:i]), typ, line})
			i--
			continue
		}

		tokens = append(tokens, Token{string(r), Invalid, line})
	}

	return tokens
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'
}
