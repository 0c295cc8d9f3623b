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
	"bytes"
	"io"
	"testing"

	"github.com/thyth/seer/internal/action"
	"github.com/thyth/seer/internal/connection"
	"github.com/thyth/seer/internal/sequence"
)

const ps1Sep = "\x1b[0;30m\x1b[0m\x1b[1;37m\x1b[0m"

// chunkReader yields one predefined chunk per Read call, then EOF.
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n == len(c.chunks[0]) {
		c.chunks = c.chunks[1:]
	} else {
		c.chunks[0] = c.chunks[0][n:]
	}
	return n, nil
}

type harness struct {
	scan *Scanner
	sess *Session
	out  *bytes.Buffer
}

func newHarness(kind sequence.ShellKind, level connection.Level, chunks ...[]byte) *harness {
	sess := NewSession(kind, nil)
	out := &bytes.Buffer{}
	conn := connection.New(&chunkReader{chunks: chunks}, out, level)
	return &harness{
		scan: NewScanner(conn, sequence.BuildDefaultTable(kind), sess),
		sess: sess,
		out:  out,
	}
}

// run pumps every chunk through the scanner until end-of-stream.
func (h *harness) run(t *testing.T) {
	t.Helper()
	for {
		status, err := h.scan.Pump()
		if err != nil {
			t.Fatalf("pump: %v", err)
		}
		if status != connection.ReadOk {
			break
		}
	}
}

func actionKinds(sess *Session) []action.Kind {
	var out []action.Kind
	for _, a := range sess.Actions.PopAll() {
		out = append(out, a.Kind)
	}
	return out
}

func TestPromptEntry(t *testing.T) {
	h := newHarness(sequence.Bash, connection.Executing,
		[]byte(ps1Sep+"ls *.c "))
	h.run(t)

	if h.scan.Conn().Level != connection.AtPrompt {
		t.Errorf("level = %v, want AtPrompt", h.scan.Conn().Level)
	}
	if got := string(h.sess.Cmd.Text()); got != "ls *.c " {
		t.Errorf("cmd = %q, want %q", got, "ls *.c ")
	}
	if h.sess.Cmd.Pos() != 7 {
		t.Errorf("pos = %d, want 7", h.sess.Cmd.Pos())
	}
	sendCmds := 0
	for _, k := range actionKinds(h.sess) {
		if k == action.SendCmd {
			sendCmds++
		}
	}
	if sendCmds != 1 {
		t.Errorf("got %d SendCmd actions, want exactly 1", sendCmds)
	}
}

func TestPromptEntryPassesBytesThrough(t *testing.T) {
	input := ps1Sep + "echo"
	h := newHarness(sequence.Bash, connection.Executing, []byte(input))
	h.run(t)
	if got := h.out.String(); got != input {
		t.Errorf("passthrough = %q, want %q", got, input)
	}
}

func TestCursorMath(t *testing.T) {
	h := newHarness(sequence.Bash, connection.AtPrompt,
		[]byte("hello world"), []byte("\x1b[5D"), []byte("x"))
	h.run(t)

	// Back 5 from the end lands on 'w'; the overwrite replaces it.
	if got := string(h.sess.Cmd.Text()); got != "hello xorld" {
		t.Errorf("cmd = %q, want %q", got, "hello xorld")
	}
	if h.sess.Cmd.Pos() != 7 {
		t.Errorf("pos = %d, want 7", h.sess.Cmd.Pos())
	}
}

func TestCursorBackwardUnderflowRaisesLost(t *testing.T) {
	h := newHarness(sequence.Bash, connection.AtPrompt,
		[]byte("ab"), []byte("\x1b[5D"))
	h.run(t)

	if h.sess.Cmd.Len() != 0 {
		t.Errorf("command line not cleared: %q", h.sess.Cmd.Text())
	}
	if h.scan.Conn().Level != connection.Executing {
		t.Errorf("level = %v, want Executing", h.scan.Conn().Level)
	}
	found := false
	for _, k := range actionKinds(h.sess) {
		if k == action.SendLost {
			found = true
		}
	}
	if !found {
		t.Error("no SendLost action raised")
	}
}

func TestWrapVsExecute(t *testing.T) {
	h := newHarness(sequence.Bash, connection.AtPrompt, []byte("ls"), []byte("\r\n"))
	for {
		// First chunk builds the command; arm the heuristic before the
		// newline arrives, as a terminal-side Enter would have.
		status, err := h.scan.Pump()
		if err != nil {
			t.Fatal(err)
		}
		h.sess.ExpectNewline = true
		if status != connection.ReadOk {
			break
		}
	}

	if h.scan.Conn().Level != connection.Executing {
		t.Errorf("level = %v, want Executing after execution", h.scan.Conn().Level)
	}
	// The command line survives until the next PromptStarted clears it.
	if got := string(h.sess.Cmd.Text()); got != "ls" {
		t.Errorf("cmd = %q, want %q", got, "ls")
	}
}

func TestNewlineWrapWithoutTrigger(t *testing.T) {
	h := newHarness(sequence.Bash, connection.AtPrompt, []byte("ls"), []byte("\r\n"))
	h.run(t)

	if h.scan.Conn().Level != connection.AtPrompt {
		t.Errorf("level = %v, want AtPrompt (wrap, not execution)", h.scan.Conn().Level)
	}
	if got := string(h.sess.Cmd.Text()); got != "ls\r" {
		t.Errorf("cmd = %q, want soft break recorded", got)
	}
}

func TestNavigationPrefixEaten(t *testing.T) {
	h := newHarness(sequence.Bash, connection.Terminal, []byte("\ak"))
	h.run(t)

	if h.out.Len() != 0 {
		t.Errorf("nav bytes leaked to the shell: %q", h.out.String())
	}
	ks := actionKinds(h.sess)
	if len(ks) != 1 || ks[0] != action.SendUp {
		t.Errorf("actions = %v, want [SendUp]", ks)
	}
}

func TestNavigationPrefixSplitAcrossReads(t *testing.T) {
	h := newHarness(sequence.Bash, connection.Terminal, []byte("\a"), []byte("d"))
	h.run(t)

	if h.out.Len() != 0 {
		t.Errorf("nav bytes leaked to the shell: %q", h.out.String())
	}
	ks := actionKinds(h.sess)
	if len(ks) != 1 || ks[0] != action.SendPgDown {
		t.Errorf("actions = %v, want [SendPgDown]", ks)
	}
}

func TestTerminalInputPassthrough(t *testing.T) {
	h := newHarness(sequence.Bash, connection.Terminal, []byte("ls -la\r"))
	h.run(t)
	if got := h.out.String(); got != "ls -la\r" {
		t.Errorf("passthrough = %q", got)
	}
}

func TestPwdChanged(t *testing.T) {
	h := newHarness(sequence.Bash, connection.Executing,
		[]byte("\x1bP/home/user\x1b\\"))
	h.run(t)

	if h.sess.Pwd != "/home/user" {
		t.Errorf("pwd = %q, want /home/user", h.sess.Pwd)
	}
	ks := actionKinds(h.sess)
	if len(ks) != 1 || ks[0] != action.SendPwd {
		t.Errorf("actions = %v, want [SendPwd]", ks)
	}
	if h.out.Len() != 0 {
		t.Errorf("pwd delimiter leaked: %q", h.out.String())
	}
}

func TestDeleteCharsAndInsertBlanks(t *testing.T) {
	h := newHarness(sequence.Bash, connection.AtPrompt,
		[]byte("abcdef"), []byte("\x1b[4D"), []byte("\x1b[2P"), []byte("\x1b[1@"))
	h.run(t)

	if got := string(h.sess.Cmd.Text()); got != "ab ef" {
		t.Errorf("cmd = %q, want %q", got, "ab ef")
	}
}

func TestEraseInLineWipesRight(t *testing.T) {
	h := newHarness(sequence.Bash, connection.AtPrompt,
		[]byte("abcdef"), []byte("\x1b[3D"), []byte("\x1b[K"))
	h.run(t)

	if got := string(h.sess.Cmd.Text()); got != "abc" {
		t.Errorf("cmd = %q, want %q", got, "abc")
	}
}

func TestZshCursorForwardPastEndStartsRPrompt(t *testing.T) {
	h := newHarness(sequence.Zsh, connection.AtPrompt,
		[]byte("ls"), []byte("\x1b[9C"))
	h.run(t)

	if h.scan.Conn().Level != connection.AtRPrompt {
		t.Errorf("level = %v, want AtRPrompt", h.scan.Conn().Level)
	}
	if !h.sess.Cmd.Rebuilding {
		t.Error("rebuilding not set")
	}
}

func TestZshCursorForwardOneOffWipesRPrompt(t *testing.T) {
	h := newHarness(sequence.Zsh, connection.AtPrompt,
		[]byte("ls"), []byte("\x1b[1C"))
	h.run(t)

	if got := string(h.sess.Cmd.Text()); got != "ls " {
		t.Errorf("cmd = %q, want trailing space", got)
	}
}

func TestBashCursorForwardPastEndExecutes(t *testing.T) {
	h := newHarness(sequence.Bash, connection.AtPrompt,
		[]byte("ls"), []byte("\x1b[5C"))
	h.run(t)

	if h.scan.Conn().Level != connection.Executing {
		t.Errorf("level = %v, want Executing", h.scan.Conn().Level)
	}
}

func TestRebuildKeepsCommandAcrossPrompt(t *testing.T) {
	h := newHarness(sequence.Zsh, connection.AtPrompt,
		[]byte("ls"), []byte("\x1b[9C"), []byte("\x1bP"+"rp-end"+"\x1b\\"))
	h.run(t)

	if h.scan.Conn().Level != connection.AtPrompt {
		t.Errorf("level = %v, want AtPrompt", h.scan.Conn().Level)
	}
	if got := string(h.sess.Cmd.Text()); got != "ls" {
		t.Errorf("rebuilt cmd = %q, want %q preserved", got, "ls")
	}
	if h.sess.Cmd.Rebuilding {
		t.Error("rebuilding flag not cleared at prompt")
	}
}

// Holdover round-trip: any split of the stream produces the same
// command line, level, and passthrough bytes as the unsplit stream.
func TestHoldoverRoundTrip(t *testing.T) {
	stream := []byte(ps1Sep + "echo hi" + "\x1b[3D" + "x" + "\x1b[K")
	ref := newHarness(sequence.Bash, connection.Executing, stream)
	ref.run(t)

	for cut := 1; cut < len(stream); cut++ {
		h := newHarness(sequence.Bash, connection.Executing,
			stream[:cut], stream[cut:])
		h.run(t)

		if got, want := string(h.sess.Cmd.Text()), string(ref.sess.Cmd.Text()); got != want {
			t.Errorf("cut %d: cmd = %q, want %q", cut, got, want)
		}
		if h.sess.Cmd.Pos() != ref.sess.Cmd.Pos() {
			t.Errorf("cut %d: pos = %d, want %d", cut, h.sess.Cmd.Pos(), ref.sess.Cmd.Pos())
		}
		if h.scan.Conn().Level != ref.scan.Conn().Level {
			t.Errorf("cut %d: level = %v, want %v", cut, h.scan.Conn().Level, ref.scan.Conn().Level)
		}
		if got, want := h.out.String(), ref.out.String(); got != want {
			t.Errorf("cut %d: passthrough = %q, want %q", cut, got, want)
		}
	}
}

func TestScanForNewline(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"ls -la", false},
		{"ls\r", true},
		{"ls\n", true},
		{"\t", true},
		{"\x03", true},
		{"\x04", true},
		{"\x0f", true},
		{"", false},
	}
	for _, tc := range cases {
		if got := ScanForNewline([]byte(tc.in)); got != tc.want {
			t.Errorf("ScanForNewline(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCursorUpAcrossSoftLines(t *testing.T) {
	// Two soft wraps build "aaa\rbbb\rccc"; cursor up one line from the
	// end of 'ccc' lands at the same column arithmetic on the middle
	// landmark.
	h := newHarness(sequence.Bash, connection.AtPrompt,
		[]byte("aaa"), []byte("\r\n"), []byte("bbb"), []byte("\r\n"),
		[]byte("ccc"), []byte("\x1b[1A"))
	h.run(t)

	if got := string(h.sess.Cmd.Text()); got != "aaa\rbbb\rccc" {
		t.Fatalf("cmd = %q", got)
	}
	if h.sess.Cmd.Pos() != 7 {
		t.Errorf("pos = %d, want 7", h.sess.Cmd.Pos())
	}
	if h.scan.Conn().Level != connection.AtPrompt {
		t.Errorf("level = %v, want AtPrompt", h.scan.Conn().Level)
	}
}

func TestCursorUpOverflowRebuilds(t *testing.T) {
	h := newHarness(sequence.Bash, connection.AtPrompt,
		[]byte("abc"), []byte("\x1b[2A"))
	h.run(t)

	if h.scan.Conn().Level != connection.Executing {
		t.Errorf("level = %v, want Executing", h.scan.Conn().Level)
	}
	if !h.sess.Cmd.Rebuilding {
		t.Error("rebuilding not set")
	}
	if h.sess.Cmd.Pos() != 0 {
		t.Errorf("pos = %d, want 0", h.sess.Cmd.Pos())
	}
}
