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

package sequence

// Effect is the outcome raised when a Sequence completes a match. It is
// a sum type in spirit: callers switch on Kind and consult the fields
// that are meaningful for that kind (N, Payload).
type Effect struct {
	Kind    EffectKind
	N       int
	Payload []byte
}

type EffectKind int

const (
	PromptStarted EffectKind = iota
	RPromptStarted
	CmdRebuild
	PwdChanged
	CursorForward
	CursorBackward
	Backspace
	DeleteChars
	InsertBlanks
	EraseInLine
	CursorUp
	CarriageReturn
	NewlineEffect
	CmdWrapped
	Bell
	NoEffect
	MatchError
	NavUp
	NavDown
	NavPgUp
	NavPgDown
	NavToggle
	NavRefocus
	NavDisable
)

// Seg describes how the matched byte span should be disposed of: Eat
// (suppressed from terminal output) or Pass (forwarded verbatim).
type Seg int

const (
	Eat Seg = iota
	Pass
)

// Sequence is a named, compiled pattern plus the effect it raises on a
// full match and how its matched span should be consumed.
type Sequence struct {
	Name    string
	Pattern Pattern
	Seg     Seg
	Make    func(captures [][]byte) Effect
}

// instance is the live, per-connection matching state for one Sequence.
type instance struct {
	seq     *Sequence
	pos     int
	enabled bool
	capture []byte
	capturesOut [][]byte
}

func newInstance(seq *Sequence) *instance {
	return &instance{seq: seq, pos: 0, enabled: true}
}

func (inst *instance) reset() {
	inst.pos = 0
	inst.enabled = true
	inst.capture = nil
	inst.capturesOut = nil
}

// step feeds one byte to this sequence instance. It returns true if the
// pattern has now fully matched.
func (inst *instance) step(b byte) bool {
	if !inst.enabled {
		return false
	}
	for {
		if inst.pos >= len(inst.seq.Pattern) {
			inst.enabled = false
			return false
		}
		tok := inst.seq.Pattern[inst.pos]
		switch tok.Kind {
		case Lit:
			if b != tok.Byte {
				inst.enabled = false
				return false
			}
			inst.pos++
			if inst.pos == len(inst.seq.Pattern) {
				return true
			}
			return false

		case Digit:
			if isDigit(b) {
				inst.capture = append(inst.capture, b)
				return false
			}
			inst.capturesOut = append(inst.capturesOut, inst.capture)
			inst.capture = nil
			inst.pos++
			continue

		case Printable:
			if isPrintable(b) {
				inst.capture = append(inst.capture, b)
				return false
			}
			inst.capturesOut = append(inst.capturesOut, inst.capture)
			inst.capture = nil
			inst.pos++
			continue

		case NotLF:
			if b == '\n' {
				inst.enabled = false
				return false
			}
			inst.pos++
			if inst.pos == len(inst.seq.Pattern) {
				return true
			}
			return false

		case NotLFCR:
			if b == '\n' || b == '\r' {
				inst.enabled = false
				return false
			}
			inst.pos++
			if inst.pos == len(inst.seq.Pattern) {
				return true
			}
			return false
		}
	}
}

// Status is the per-byte outcome of feeding the Matcher.
type Status int

const (
	InProgress Status = iota
	Match
	NoMatch
)

// Matcher runs the active set of patterns for one process level against
// an incoming byte stream.
type Matcher struct {
	table   *Table
	active  []*instance
	level   int
}

func NewMatcher(table *Table) *Matcher {
	m := &Matcher{table: table}
	return m
}

// SetLevel switches the active sequence set, re-arming every instance.
func (m *Matcher) SetLevel(level int) {
	m.level = level
	seqs := m.table.For(level)
	m.active = make([]*instance, len(seqs))
	for i, s := range seqs {
		m.active[i] = newInstance(s)
	}
}

// Reset re-arms every instance in the current active set, as happens
// after a completed match or a byte that disabled every candidate.
func (m *Matcher) Reset() {
	for _, inst := range m.active {
		inst.reset()
	}
}

// Feed advances every enabled instance by one byte. On the first
// instance to complete, the rest are disabled for this byte (first
// full match wins, no backtracking) and Match is returned along with
// the realized Effect and the matched Sequence's Seg disposition.
func (m *Matcher) Feed(b byte) (Status, Effect, Seg) {
	var matched *instance
	for _, inst := range m.active {
		if !inst.enabled {
			continue
		}
		if matched != nil {
			inst.enabled = false
			continue
		}
		if inst.step(b) {
			matched = inst
		}
	}
	if matched != nil {
		eff := matched.seq.Make(matched.capturesOut)
		return Match, eff, matched.seq.Seg
	}
	for _, inst := range m.active {
		if inst.enabled {
			return InProgress, Effect{}, Eat
		}
	}
	return NoMatch, Effect{}, Eat
}
