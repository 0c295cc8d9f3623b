/*
 * nosshtradamus: predictive terminal emulation for SSH
 * Copyright 2019 Daniel Selifonov
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package sequence implements the escape-sequence pattern language and
// the byte-at-a-time matcher described for the "seer" half of the
// bridge: four non-literal wildcards (DIGIT*, PRINTABLE*, NOT_LF,
// NOT_LF_CR) compiled into token streams, matched without backtracking.
package sequence

// Kind identifies a token in a compiled Pattern.
type Kind int

const (
	Lit Kind = iota
	Digit
	Printable
	NotLF
	NotLFCR
)

// Token is one element of a compiled Pattern.
type Token struct {
	Kind Kind
	Byte byte
}

// Pattern is a compiled sequence: a flat token stream. The starred
// wildcards (DigitStar, PrintableStar) are never adjacent to one another
// and never terminal, so each is always followed by a literal delimiter
// token. The single-byte wildcards (NotLF, NotLFCR) may end a pattern.
type Pattern []Token

// Builder assembles a Pattern fluently out of literal runs
// interleaved with wildcard tokens.
type Builder struct {
	toks Pattern
}

func New() *Builder { return &Builder{} }

func (b *Builder) Lit(s string) *Builder {
	for i := 0; i < len(s); i++ {
		b.toks = append(b.toks, Token{Kind: Lit, Byte: s[i]})
	}
	return b
}

func (b *Builder) Byte(c byte) *Builder {
	b.toks = append(b.toks, Token{Kind: Lit, Byte: c})
	return b
}

func (b *Builder) DigitStar() *Builder {
	b.toks = append(b.toks, Token{Kind: Digit})
	return b
}

func (b *Builder) PrintableStar() *Builder {
	b.toks = append(b.toks, Token{Kind: Printable})
	return b
}

func (b *Builder) NotLF() *Builder {
	b.toks = append(b.toks, Token{Kind: NotLF})
	return b
}

func (b *Builder) NotLFCR() *Builder {
	b.toks = append(b.toks, Token{Kind: NotLFCR})
	return b
}

func (b *Builder) Build() Pattern {
	return b.toks
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isPrintable(c byte) bool { return c >= 0x20 && c < 0x7f }
