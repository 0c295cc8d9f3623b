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

package bridge

import (
	"fmt"
	"io"
	"strings"

	"github.com/thyth/seer/internal/action"

	"github.com/google/shlex"
)

// Sender serializes the bridge's outbound records: glob-expansion
// requests on the glob channel, and cmd:/order: records on the command
// channel the renderer's decoder reads.
type Sender struct {
	// Glob receives one expansion request line per SendCmd/SendPwd:
	//   cd "<pwd>" && <expander> -- <sanitized cmd>
	// The shell-side helper runs it and streams the resulting frames
	// back on the glob data channel.
	Glob io.Writer
	// Cmd receives cmd:<text> and order:<keyword> records.
	Cmd io.Writer

	// Expander is the glob-helper executable named in each request.
	Expander string
	// GlobFifo, when set, is appended to each request as the output
	// redirection target for the helper's frames.
	GlobFifo string
}

func NewSender(glob, cmd io.Writer, expander, globFifo string) *Sender {
	if expander == "" {
		expander = "vgexpand"
	}
	return &Sender{Glob: glob, Cmd: cmd, Expander: expander, GlobFifo: globFifo}
}

// Sanitize flattens a reconstructed command line for transport: soft
// line breaks become spaces, and the result is re-split into shell
// words where possible so stray editing artifacts collapse. A line
// that does not lex (an unbalanced quote mid-typing) is forwarded
// with only the line-break substitution and its surrounding
// whitespace trimmed.
func Sanitize(cmd []byte) string {
	flat := strings.ReplaceAll(string(cmd), "\r", " ")
	words, err := shlex.Split(flat)
	if err != nil || len(words) == 0 {
		return strings.TrimSpace(flat)
	}
	return strings.Join(words, " ")
}

// SendCmd writes the expansion request for the current pwd and command
// text, plus the cmd: record updating the renderer's displayed text.
func (s *Sender) SendCmd(pwd string, cmd []byte) error {
	sane := Sanitize(cmd)
	if s.Glob != nil {
		req := fmt.Sprintf("cd %q && %s -- %s", pwd, s.Expander, sane)
		if s.GlobFifo != "" {
			req += fmt.Sprintf(" >> %s", s.GlobFifo)
		}
		req += " ; cd /\n"
		if _, err := io.WriteString(s.Glob, req); err != nil {
			return &IoError{Op: "glob write", Err: err}
		}
	}
	if s.Cmd != nil {
		if _, err := fmt.Fprintf(s.Cmd, "cmd:%s\n", sane); err != nil {
			return &IoError{Op: "cmd write", Err: err}
		}
	}
	return nil
}

// SendPwd refreshes the expansion for a directory change alone.
func (s *Sender) SendPwd(pwd string, cmd []byte) error {
	return s.SendCmd(pwd, cmd)
}

// orderKeywords maps the order-bearing actions to their wire keywords.
var orderKeywords = map[action.Kind]string{
	action.SendLost:   "lost",
	action.SendUp:     "up",
	action.SendDown:   "down",
	action.SendPgUp:   "pgup",
	action.SendPgDown: "pgdown",
}

// SendOrder writes an order:<keyword> record for a viewport action.
func (s *Sender) SendOrder(k action.Kind) error {
	kw, ok := orderKeywords[k]
	if !ok {
		return fmt.Errorf("no order keyword for action %s", k)
	}
	if s.Cmd == nil {
		return nil
	}
	if _, err := fmt.Fprintf(s.Cmd, "order:%s\n", kw); err != nil {
		return &IoError{Op: "cmd write", Err: err}
	}
	return nil
}

// shellSpecials are the bytes escaped when a filename is typed into
// the shell on the user's behalf.
const shellSpecials = "*?$|&;()<> \t\n[]#'\"`,:{}~\\!"

// EscapeFilename backslash-escapes name for insertion into the shell's
// input stream. Escaping applies at the prompt, and always when smart
// insertion is off.
func EscapeFilename(name string, atPrompt, smartInsert bool) string {
	if !atPrompt && smartInsert {
		return name
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if strings.IndexByte(shellSpecials, name[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(name[i])
	}
	return b.String()
}

// InsertText builds the byte run typed into the shell for a file:
// feedback record: the escaped name, padded with spaces where the
// command line has none adjacent to the cursor.
func (sess *Session) InsertText(name string, atPrompt, smartInsert, holdoverIsSpace bool) []byte {
	var b []byte
	if atPrompt && smartInsert && !sess.Cmd.WhitespaceToLeft(holdoverIsSpace) {
		b = append(b, ' ')
	}
	b = append(b, EscapeFilename(name, atPrompt, smartInsert)...)
	if atPrompt && smartInsert && !sess.Cmd.WhitespaceToRight() {
		b = append(b, ' ')
	}
	return b
}
