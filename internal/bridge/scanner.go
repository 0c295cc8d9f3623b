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

// Package bridge forks a shell under a pty and pumps bytes between
// the user's terminal and the shell, reconstructing the visible
// command line from the shell's echo stream along the way.
package bridge

import (
	"bytes"

	"github.com/thyth/seer/internal/action"
	"github.com/thyth/seer/internal/cmdline"
	"github.com/thyth/seer/internal/connection"
	"github.com/thyth/seer/internal/sequence"

	"github.com/charmbracelet/log"
)

// NewlineTriggerBytes are the terminal-input bytes that arm the
// wrap-vs-execute heuristic: once any of them is seen, the next
// shell-side newline that extends past the command line is read as
// command execution rather than a line wrap. \t is included for tab
// completion, \x0f for bash's operate-and-get-next.
var NewlineTriggerBytes = []byte{'\n', '\t', 0x03, 0x04, '\r', 0x0f}

// ScanForNewline reports whether buf contains any trigger byte. The
// result is assigned, not or-ed: a terminal read with no trigger bytes
// clears the flag, and nothing else ever does.
func ScanForNewline(buf []byte) bool {
	return bytes.ContainsAny(buf, string(NewlineTriggerBytes))
}

// Session is the per-shell state shared by the terminal and shell
// scanners: the reconstructed command line, the deferred overwrites,
// the pending actions, and the tracked working directory.
type Session struct {
	Shell      sequence.ShellKind
	Cmd        *cmdline.CommandLine
	Overwrites *cmdline.OverwriteQueue
	Actions    *action.Queue
	Pwd        string

	// ExpectNewline is reassigned on every terminal read (see
	// ScanForNewline); the shell-side handlers read it but never
	// clear it.
	ExpectNewline bool

	Logger *log.Logger
}

func NewSession(shell sequence.ShellKind, logger *log.Logger) *Session {
	return &Session{
		Shell:      shell,
		Cmd:        cmdline.New(),
		Overwrites: &cmdline.OverwriteQueue{},
		Actions:    &action.Queue{},
		Logger:     logger,
	}
}

// Scanner drives one Connection through the Matcher, resolving each
// byte into a matched segment (eaten or passed), an ordinary byte, or
// a holdover carried to the next read.
type Scanner struct {
	conn    *connection.Connection
	matcher *sequence.Matcher
	sess    *Session

	// pending is the length of the unresolved segment carried in the
	// connection's holdover; matching resumes at that offset after the
	// holdover is prepended to the next window.
	pending    int
	inProgress bool
}

func NewScanner(conn *connection.Connection, table *sequence.Table, sess *Session) *Scanner {
	m := sequence.NewMatcher(table)
	m.SetLevel(int(conn.Level))
	return &Scanner{conn: conn, matcher: m, sess: sess}
}

func (s *Scanner) Conn() *connection.Connection { return s.conn }

// Pump performs one read-scan-write round on the connection. At
// end-of-stream any segment still in progress is resolved as ordinary
// bytes; no further input can ever complete it.
func (s *Scanner) Pump() (connection.ReadStatus, error) {
	window, status, err := s.conn.Read()
	switch status {
	case connection.ReadErr:
		return status, err
	case connection.ReadExit:
		if err := s.finish(window); err != nil {
			return connection.ReadErr, err
		}
		return connection.ReadExit, nil
	}
	if s.conn.Level == connection.Terminal {
		s.sess.ExpectNewline = ScanForNewline(window)
	}
	if err := s.Process(window); err != nil {
		return connection.ReadErr, err
	}
	return connection.ReadOk, nil
}

func (s *Scanner) finish(window []byte) error {
	s.inProgress = false
	s.pending = 0
	s.matcher.Reset()
	if len(window) == 0 {
		return nil
	}
	for _, b := range window {
		s.resolveOrdinary(b)
	}
	if _, err := s.conn.Pass(0, len(window)); err != nil {
		return &IoError{Op: "pass", Err: err}
	}
	return nil
}

// Process scans window byte-at-a-time: grow the segment while a
// match is in progress; on a match run the effect handler and eat or
// pass the segment; on no-match resolve the segment's first byte as
// ordinary text and replay the rest.
func (s *Scanner) Process(window []byte) error {
	segStart := 0
	i := 0
	if s.inProgress {
		// The holdover was prepended; the first pending bytes have
		// already been fed to the matcher. If no fresh bytes follow,
		// the in-progress state simply carries to the next round.
		i = s.pending
	}
	s.pending = 0

	for i < len(window) {
		if s.conn.Level != connection.Terminal {
			s.sess.Cmd.TrimTrailingCR()
		}

		status, eff, seg := s.matcher.Feed(window[i])
		switch status {
		case sequence.InProgress:
			i++
			s.inProgress = true

		case sequence.Match:
			retain := s.apply(eff)
			end := i + 1 - retain
			if end <= segStart {
				end = segStart + 1
			}
			if seg == sequence.Eat {
				s.conn.Eat(segStart, end)
			} else {
				if _, err := s.conn.Pass(segStart, end); err != nil {
					return &IoError{Op: "pass", Err: err}
				}
			}
			segStart = end
			i = end
			s.matcher.Reset()
			s.inProgress = false

		case sequence.NoMatch:
			// The segment's first byte is ordinary text. Resolve it,
			// then replay the remaining segment bytes against a fresh
			// sequence set.
			s.resolveOrdinary(window[segStart])
			if _, err := s.conn.Pass(segStart, segStart+1); err != nil {
				return &IoError{Op: "pass", Err: err}
			}
			segStart++
			i = segStart
			s.matcher.Reset()
			s.inProgress = false
		}
	}

	if s.inProgress && segStart < len(window) {
		s.pending = len(window) - segStart
		if s.conn.Level == connection.AtPrompt {
			// Written-through: echo responsiveness wins at the prompt,
			// so emit now and skip on the next round.
			if _, err := s.conn.Pass(segStart, len(window)); err != nil {
				return &IoError{Op: "pass", Err: err}
			}
			s.conn.HoldWrittenThrough(segStart)
		} else {
			// Deferred: the segment may be a delimiter that must never
			// reach the terminal; suppress it until the match resolves.
			s.conn.HoldDeferred(segStart)
		}
	}
	return nil
}

// HoldoverIsLoneSpace reports whether the unresolved segment is a
// single prompt byte, which in practice is a space that has not yet
// resolved into the command line; smart insertion treats it as
// whitespace already typed.
func (s *Scanner) HoldoverIsLoneSpace() bool {
	return s.inProgress && s.pending == 1 && s.conn.Level == connection.AtPrompt
}

func (s *Scanner) setLevel(lvl connection.Level) {
	s.conn.Level = lvl
	s.matcher.SetLevel(int(lvl))
}

// resolveOrdinary handles a byte no sequence claimed. At the prompt it
// is shell echo and lands in the command line; while a rebuild is in
// flight it is deferred until the prompt is positively identified.
func (s *Scanner) resolveOrdinary(b byte) {
	switch s.conn.Level {
	case connection.AtPrompt:
		s.sess.Cmd.Overwrite(b, false)
		s.sess.Actions.PushLatest(action.SendCmd)
	case connection.Executing:
		if s.sess.Cmd.Rebuilding {
			s.sess.Overwrites.Push(b, true)
		}
	}
}

// fail is the Error effect: clear the command line to signal we are
// out of sync, wait for the next PS1, and tell the renderer the
// command was lost.
func (s *Scanner) fail() {
	s.sess.Cmd.Clear()
	s.setLevel(connection.Executing)
	s.sess.Actions.PushLatest(action.SendLost)
}

// apply runs the matched sequence's effect against the session,
// returning how many trailing segment bytes to leave unconsumed (the
// carriage-return and cmd-wrapped sequences overshoot by one byte to
// delimit themselves and must give it back).
func (s *Scanner) apply(eff sequence.Effect) (retain int) {
	sess := s.sess
	cl := sess.Cmd

	switch eff.Kind {
	case sequence.PromptStarted:
		if cl.Rebuilding {
			cl.Rebuilding = false
		} else {
			cl.Clear()
		}
		sess.Overwrites.Flush(cl)
		s.setLevel(connection.AtPrompt)
		sess.Actions.PushLatest(action.SendCmd)

	case sequence.RPromptStarted:
		cl.Rebuilding = true
		s.setLevel(connection.AtRPrompt)

	case sequence.CmdRebuild:
		cl.Rebuilding = true
		s.setLevel(connection.Executing)

	case sequence.PwdChanged:
		sess.Pwd = string(eff.Payload)
		sess.Actions.PushLatest(action.SendPwd)

	case sequence.CursorForward:
		s.cursorForward(eff.N)

	case sequence.CursorBackward:
		if err := cl.CursorBackward(eff.N); err != nil {
			s.fail()
		}

	case sequence.Backspace:
		if err := cl.Backspace(); err != nil {
			s.fail()
		}

	case sequence.DeleteChars:
		if err := cl.Delete(eff.N); err != nil {
			s.fail()
		} else {
			sess.Actions.PushLatest(action.SendCmd)
		}

	case sequence.InsertBlanks:
		if err := cl.Insert(' ', eff.N); err != nil {
			s.fail()
		} else {
			sess.Actions.PushLatest(action.SendCmd)
		}

	case sequence.EraseInLine:
		var err error
		switch eff.N {
		case 1:
			err = cl.WipeInLine(cmdline.Left)
		case 2:
			err = cl.WipeInLine(cmdline.All)
		default:
			err = cl.WipeInLine(cmdline.Right)
		}
		if err != nil {
			s.fail()
		} else {
			sess.Actions.PushLatest(action.SendCmd)
		}

	case sequence.CursorUp:
		s.cursorUp(eff.N)

	case sequence.CarriageReturn:
		retain = s.carriageReturn()

	case sequence.NewlineEffect:
		s.newline()

	case sequence.CmdWrapped:
		if sess.ExpectNewline {
			s.setLevel(connection.Executing)
		} else {
			cl.Overwrite('\r', false)
		}
		retain = 1

	case sequence.Bell:
		// Just ignore the bell.

	case sequence.NavUp:
		sess.Actions.PushLatest(action.SendUp)
	case sequence.NavDown:
		sess.Actions.PushLatest(action.SendDown)
	case sequence.NavPgUp:
		sess.Actions.PushLatest(action.SendPgUp)
	case sequence.NavPgDown:
		sess.Actions.PushLatest(action.SendPgDown)
	case sequence.NavToggle:
		sess.Actions.PushLatest(action.Toggle)
	case sequence.NavRefocus:
		sess.Actions.PushLatest(action.Refocus)
	case sequence.NavDisable:
		sess.Actions.PushLatest(action.Disable)
	}
	return retain
}

// cursorForward moves right, with the past-end heuristic: bash only
// does this when the command has executed; zsh may be wiping or
// drawing its RPROMPT (a known-fuzzy branch, reproduced as observed).
func (s *Scanner) cursorForward(n int) {
	cl := s.sess.Cmd
	if cl.Pos()+n <= cl.Len() {
		cl.CursorForward(n)
		return
	}
	if s.sess.Shell == sequence.Zsh {
		if cl.Pos()+n == cl.Len()+1 {
			// More likely a space deleting the RPROMPT.
			cl.Overwrite(' ', false)
		} else {
			// It's writing the RPROMPT.
			cl.Rebuilding = true
			s.setLevel(connection.AtRPrompt)
		}
	} else {
		s.setLevel(connection.Executing)
	}
}

// cursorUp navigates soft-wrapped lines by counting '\r' landmarks,
// first looking for the landmark opening the wanted line, then the one
// closing it; if neither works the cursor has left the prompt and the
// command line must be rebuilt.
func (s *Scanner) cursorUp(n int) {
	cl := s.sess.Cmd
	text := cl.Text()
	pos := cl.Pos()

	lastCR := bytes.LastIndexByte(text[:pos], '\r')
	nextCR := bytes.IndexByte(text[pos:], '\r')
	if lastCR == -1 && nextCR == -1 {
		s.rebuildFromStart()
		return
	}

	if lastCR != -1 {
		p := pos
		found := true
		for i := 0; i < n+1; i++ {
			idx := bytes.LastIndexByte(text[:p], '\r')
			if idx == -1 {
				found = false
				break
			}
			p = idx
		}
		if found {
			offset := pos - lastCR
			if np := p + offset; np >= 0 {
				_ = cl.SetPos(np)
				return
			}
			s.rebuildFromStart()
			return
		}
	}

	if nextCR != -1 {
		p := pos
		found := true
		for i := 0; i < n; i++ {
			idx := bytes.LastIndexByte(text[:p], '\r')
			if idx == -1 {
				found = false
				break
			}
			p = idx
		}
		if found {
			offset := nextCR
			if np := p - offset; np >= 0 {
				_ = cl.SetPos(np)
				return
			}
		}
	}

	s.rebuildFromStart()
}

func (s *Scanner) rebuildFromStart() {
	_ = s.sess.Cmd.SetPos(0)
	s.sess.Cmd.Rebuilding = true
	s.setLevel(connection.Executing)
}

// carriageReturn returns the cursor to the start of the current soft
// line, or reads the byte as command execution when the wrap-vs-execute
// heuristic is armed.
func (s *Scanner) carriageReturn() (retain int) {
	cl := s.sess.Cmd
	if s.sess.ExpectNewline {
		s.setLevel(connection.Executing)
		return 0
	}
	text := cl.Text()
	idx := bytes.LastIndexByte(text[:cl.Pos()], '\r')
	if idx == -1 {
		_ = cl.SetPos(0)
		cl.Rebuilding = true
		s.setLevel(connection.Executing)
	} else {
		_ = cl.SetPos(idx + 1)
	}
	// The NOT_LF delimiter byte belongs to the next segment.
	return 1
}

// newline decides wrap vs execute: a newline with no '\r' landmark to
// the right of the cursor means execution if the heuristic is armed,
// otherwise a soft wrap recorded as a '\r' at the end of the line.
func (s *Scanner) newline() {
	cl := s.sess.Cmd
	text := cl.Text()
	idx := bytes.IndexByte(text[cl.Pos():], '\r')
	if idx == -1 {
		if s.sess.ExpectNewline {
			s.setLevel(connection.Executing)
		} else {
			_ = cl.SetPos(cl.Len())
			cl.Overwrite('\r', false)
		}
	} else {
		_ = cl.SetPos(cl.Pos() + idx + 1)
	}
}
