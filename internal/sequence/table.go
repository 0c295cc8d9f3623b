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

import "strconv"

// Levels mirror connection.Level; kept as plain ints here so this
// package has no dependency on connection and stays independently
// testable.
const (
	LevelTerminal = iota
	LevelAtPrompt
	LevelExecuting
	LevelAtRPrompt
	numLevels
)

// Table holds, for each process level, the ordered list of Sequences
// active at that level. Within a Sequence's Pattern, starred wildcards
// are never adjacent to each other and never terminal, so every one is
// followed by a literal delimiter.
type Table struct {
	byLevel [numLevels][]*Sequence
}

func (t *Table) For(level int) []*Sequence {
	if level < 0 || level >= numLevels {
		return nil
	}
	return t.byLevel[level]
}

func (t *Table) add(level int, s *Sequence) {
	t.byLevel[level] = append(t.byLevel[level], s)
}

func captureInt(cs [][]byte, idx int, def int) int {
	if idx >= len(cs) || len(cs[idx]) == 0 {
		return def
	}
	n, err := strconv.Atoi(string(cs[idx]))
	if err != nil {
		return def
	}
	return n
}

// ShellKind distinguishes the bash and zsh sequence sets — zsh alone
// uses AtRPrompt and the CursorForward-past-EOL rebuild heuristic.
type ShellKind int

const (
	Bash ShellKind = iota
	Zsh
)

// BuildDefaultTable constructs the per-level sequence table. The
// Terminal-level navigation sequences are shared across shells; the
// AtPrompt/Executing/AtRPrompt sets differ only in the prompt
// delimiters and the zsh-specific RPROMPT handling.
func BuildDefaultTable(kind ShellKind) *Table {
	t := &Table{}

	// --- Terminal-level navigation prefixes, shared by both shells. ---
	// "\a" (bell) followed by a single key byte selects a navigation
	// action. These are always eaten: they must never reach the shell.
	navSeq := func(name string, key byte, kind EffectKind) *Sequence {
		return &Sequence{
			Name:    name,
			Pattern: New().Byte('\a').Byte(key).Build(),
			Seg:     Eat,
			Make: func(_ [][]byte) Effect {
				return Effect{Kind: kind}
			},
		}
	}
	t.add(LevelTerminal, navSeq("nav-up", 'k', NavUp))
	t.add(LevelTerminal, navSeq("nav-down", 'j', NavDown))
	t.add(LevelTerminal, navSeq("nav-pgup", 'u', NavPgUp))
	t.add(LevelTerminal, navSeq("nav-pgdown", 'd', NavPgDown))
	t.add(LevelTerminal, navSeq("nav-toggle", 't', NavToggle))
	t.add(LevelTerminal, navSeq("nav-refocus", 'r', NavRefocus))
	t.add(LevelTerminal, navSeq("nav-disable", 'x', NavDisable))

	ps1Separator := &Sequence{
		Name:    "ps1-separator",
		Pattern: New().Lit("\x1b[0;30m\x1b[0m\x1b[1;37m\x1b[0m").Build(),
		Seg:     Pass,
		Make:    func(_ [][]byte) Effect { return Effect{Kind: PromptStarted} },
	}
	rpromptStart := &Sequence{
		Name:    "rprompt-separator-start",
		Pattern: New().Lit("\x1bP").Lit("rp-start").Lit("\x1b\\").Build(),
		Seg:     Pass,
		Make:    func(_ [][]byte) Effect { return Effect{Kind: RPromptStarted} },
	}
	// The end separator signals the prompt proper has resumed, so it
	// raises PromptStarted just like the PS1 separator does.
	rpromptEnd := &Sequence{
		Name:    "rprompt-separator-end",
		Pattern: New().Lit("\x1bP").Lit("rp-end").Lit("\x1b\\").Build(),
		Seg:     Pass,
		Make:    func(_ [][]byte) Effect { return Effect{Kind: PromptStarted} },
	}
	newPwd := &Sequence{
		Name:    "new-pwd",
		Pattern: New().Lit("\x1bP").PrintableStar().Lit("\x1b\\").Build(),
		Seg:     Eat,
		Make: func(cs [][]byte) Effect {
			var payload []byte
			if len(cs) > 0 {
				payload = cs[0]
			}
			return Effect{Kind: PwdChanged, Payload: payload}
		},
	}
	zshCompletionDone := &Sequence{
		Name:    "zsh-completion-done",
		Pattern: New().Lit("\x1b[0K").Build(),
		Seg:     Pass,
		Make:    func(_ [][]byte) Effect { return Effect{Kind: CmdRebuild} },
	}

	// The cursor-motion, erase, delete/insert, and backspace sequences
	// below are all Seg: Pass: they are real terminal rendering codes
	// the shell emits during line editing and prompt redraw, and the
	// user's actual terminal must see them to stay in sync. Only the
	// init-script delimiters that carry data (new-pwd) are eaten.
	termCursorForward := &Sequence{
		Name:    "cursor-forward",
		Pattern: New().Lit("\x1b[").DigitStar().Byte('C').Build(),
		Seg:     Pass,
		Make: func(cs [][]byte) Effect {
			return Effect{Kind: CursorForward, N: captureInt(cs, 0, 1)}
		},
	}
	termCursorBackward := &Sequence{
		Name:    "cursor-backward",
		Pattern: New().Lit("\x1b[").DigitStar().Byte('D').Build(),
		Seg:     Pass,
		Make: func(cs [][]byte) Effect {
			return Effect{Kind: CursorBackward, N: captureInt(cs, 0, 1)}
		},
	}
	termCursorUp := &Sequence{
		Name:    "cursor-up",
		Pattern: New().Lit("\x1b[").DigitStar().Byte('A').Build(),
		Seg:     Pass,
		Make: func(cs [][]byte) Effect {
			return Effect{Kind: CursorUp, N: captureInt(cs, 0, 1)}
		},
	}
	termEraseInLine := &Sequence{
		Name:    "erase-in-line",
		Pattern: New().Lit("\x1b[").DigitStar().Byte('K').Build(),
		Seg:     Pass,
		Make: func(cs [][]byte) Effect {
			return Effect{Kind: EraseInLine, N: captureInt(cs, 0, 0)}
		},
	}
	termDeleteChars := &Sequence{
		Name:    "delete-chars",
		Pattern: New().Lit("\x1b[").DigitStar().Byte('P').Build(),
		Seg:     Pass,
		Make: func(cs [][]byte) Effect {
			return Effect{Kind: DeleteChars, N: captureInt(cs, 0, 1)}
		},
	}
	termInsertBlanks := &Sequence{
		Name:    "insert-blanks",
		Pattern: New().Lit("\x1b[").DigitStar().Byte('@').Build(),
		Seg:     Pass,
		Make: func(cs [][]byte) Effect {
			return Effect{Kind: InsertBlanks, N: captureInt(cs, 0, 1)}
		},
	}
	termBackspace := &Sequence{
		Name:    "backspace",
		Pattern: New().Byte(0x08).Build(),
		Seg:     Pass,
		Make:    func(_ [][]byte) Effect { return Effect{Kind: Backspace} },
	}
	termBell := &Sequence{
		Name:    "bell",
		Pattern: New().Byte(0x07).Build(),
		Seg:     Pass,
		Make:    func(_ [][]byte) Effect { return Effect{Kind: Bell} },
	}
	termCmdWrapped := &Sequence{
		Name:    "cmd-wrapped",
		Pattern: New().Lit(" \r").NotLFCR().Build(),
		Seg:     Pass,
		Make:    func(_ [][]byte) Effect { return Effect{Kind: CmdWrapped} },
	}
	termCarriageReturn := &Sequence{
		Name:    "carriage-return",
		Pattern: New().Byte('\r').NotLF().Build(),
		Seg:     Pass,
		Make:    func(_ [][]byte) Effect { return Effect{Kind: CarriageReturn} },
	}
	termNewline := &Sequence{
		Name:    "newline",
		Pattern: New().Lit("\r\n").Build(),
		Seg:     Pass,
		Make:    func(_ [][]byte) Effect { return Effect{Kind: NewlineEffect} },
	}

	// The full line-editing set is active only AtPrompt; while
	// Executing only the prompt delimiters are watched for, so
	// ordinary program output is never misread as cursor motion.
	termEditing := []*Sequence{
		termCmdWrapped, termCursorForward, termBackspace,
		termEraseInLine, termDeleteChars, termInsertBlanks,
		termCursorBackward, termBell, termCursorUp,
		termCarriageReturn, termNewline,
	}

	switch kind {
	case Zsh:
		t.add(LevelAtPrompt, ps1Separator)
		t.add(LevelAtPrompt, rpromptStart)
		for _, s := range termEditing {
			t.add(LevelAtPrompt, s)
		}
		t.add(LevelAtPrompt, newPwd)

		t.add(LevelExecuting, ps1Separator)
		t.add(LevelExecuting, rpromptEnd)
		t.add(LevelExecuting, newPwd)
		t.add(LevelExecuting, zshCompletionDone)

		t.add(LevelAtRPrompt, rpromptEnd)

	default: // Bash
		t.add(LevelAtPrompt, ps1Separator)
		t.add(LevelAtPrompt, newPwd)
		for _, s := range termEditing {
			t.add(LevelAtPrompt, s)
		}

		t.add(LevelExecuting, ps1Separator)
		t.add(LevelExecuting, newPwd)
	}

	return t
}
