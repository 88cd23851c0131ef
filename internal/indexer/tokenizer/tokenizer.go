// Package tokenizer splits source text into tokens along code-significant
// boundaries. A token is a maximal run of characters outside a fixed
// delimiter set; delimiters are never emitted. Case is preserved, callers
// normalise.
package tokenizer

import (
	"bufio"
	"io"
	"iter"
	"strings"
)

// Token is one lexical unit. Line is 1-based; Offset and Length are counted
// in runes within the line.
type Token struct {
	Text   string
	Line   int
	Offset int
	Length int
}

// Delimiters lists every character that separates tokens.
const Delimiters = " \\\n\t+-*/=(){}[]<>!?:&|^\"';.,@_"

var asciiDelimiter = func() [0x80]bool {
	var table [0x80]bool
	for _, r := range Delimiters {
		table[r] = true
	}
	return table
}()

// IsTokenChar reports whether r belongs inside a token.
func IsTokenChar(r rune) bool {
	if r >= 0 && r < 0x80 {
		return !asciiDelimiter[r]
	}
	return true
}

// Tokenize returns a lazy sequence over the tokens read from r. The reader
// is consumed as the sequence is ranged over; a second range over the same
// exhausted reader yields nothing. Read errors other than io.EOF end the
// sequence early.
func Tokenize(r io.Reader) iter.Seq[Token] {
	var br io.RuneReader
	if rr, ok := r.(io.RuneReader); ok {
		br = rr
	} else {
		br = bufio.NewReader(r)
	}
	return func(yield func(Token) bool) {
		var (
			buf    strings.Builder
			line   = 1
			col    = 0
			start  = 0
			length = 0
		)
		emit := func() bool {
			if length == 0 {
				return true
			}
			tok := Token{Text: buf.String(), Line: line, Offset: start, Length: length}
			buf.Reset()
			length = 0
			return yield(tok)
		}
		for {
			ch, _, err := br.ReadRune()
			if err != nil {
				emit()
				return
			}
			if IsTokenChar(ch) {
				if length == 0 {
					start = col
				}
				buf.WriteRune(ch)
				length++
				col++
				continue
			}
			if !emit() {
				return
			}
			if ch == '\n' {
				line++
				col = 0
				continue
			}
			col++
		}
	}
}

// Terms returns the token texts of s in order.
func Terms(s string) []string {
	terms := make([]string, 0, len(s)/6)
	for tok := range Tokenize(strings.NewReader(s)) {
		terms = append(terms, tok.Text)
	}
	return terms
}
