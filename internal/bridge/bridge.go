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
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/thyth/seer/internal/action"
	"github.com/thyth/seer/internal/asyncio"
	"github.com/thyth/seer/internal/config"
	"github.com/thyth/seer/internal/connection"
	"github.com/thyth/seer/internal/directory"
	"github.com/thyth/seer/internal/feedback"
	"github.com/thyth/seer/internal/protocol"
	"github.com/thyth/seer/internal/sequence"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// wake-pipe bytes distinguishing why the event loop was woken.
const (
	wakeSignal = 's'
	wakeChild  = 'c'
)

// Bridge owns the pty master and all channels, pumping bytes between
// the user's terminal and the forked shell while feeding the matcher
// and the exhibit model.
type Bridge struct {
	cfg    *config.Config
	logger *log.Logger
	id     uuid.UUID

	table *sequence.Table
	sess  *Session

	child   *exec.Cmd
	ptmx    *os.File
	sandbox *exec.Cmd

	termScan  *Scanner
	shellScan *Scanner

	sender   *Sender
	globGate *asyncio.IoSwitch
	cmdGate  *asyncio.IoSwitch

	model    *directory.Model
	decoder  *protocol.Decoder
	cmdDec   *protocol.CommandDecoder
	fbReader *feedback.Reader

	globIn     *os.File
	feedbackIn *os.File
	wakeR      *os.File
	wakeW      *os.File

	rendererXid uint64
	displayCmd  string

	disabled  bool
	suspended bool
	signalled bool
	tmpRC     string
}

// New assembles a Bridge from the configuration. Nothing is forked
// until Run.
func New(cfg *config.Config, logger *log.Logger) *Bridge {
	sess := NewSession(cfg.ShellKind, logger)
	model := directory.New(cfg.Ordering, cfg.FileDisplayLimit)
	b := &Bridge{
		cfg:    cfg,
		logger: logger,
		id:     uuid.New(),
		table:  sequence.BuildDefaultTable(cfg.ShellKind),
		sess:   sess,
		model:  model,
	}
	b.decoder = protocol.NewDecoder(model)
	b.decoder.OnProtocolError = func(err error) {
		logger.Warn("glob frame discarded", "err", err)
	}
	b.decoder.OnFrame = func() {
		logger.Debug("frame committed", "dirs", len(model.Listings()))
	}
	b.cmdDec = &protocol.CommandDecoder{
		OnCmd: func(text string) {
			b.displayCmd = text
		},
		OnOrder: func(kw string) {
			logger.Debug("viewport order", "order", kw)
		},
	}
	b.fbReader = &feedback.Reader{}
	return b
}

// SessionID identifies this bridge in log output.
func (b *Bridge) SessionID() uuid.UUID { return b.id }

// Run forks the shell and pumps until exit. It returns nil on a clean
// child-shell EOF and ErrSignalExit (wrapped) on signal termination.
func (b *Bridge) Run() error {
	if err := b.start(); err != nil {
		return err
	}
	defer b.cleanup()
	return b.loop()
}

func (b *Bridge) start() error {
	ws, err := pty.GetsizeFull(os.Stdin)
	if err != nil {
		ws = &pty.Winsize{Rows: 24, Cols: 80}
	}

	shellCmd, err := b.shellCommand()
	if err != nil {
		return &PtyError{Err: err}
	}
	b.child = shellCmd
	b.ptmx, err = pty.StartWithSize(shellCmd, ws)
	if err != nil {
		return &PtyError{Err: err}
	}

	if b.cfg.GlobFifoPath != "" {
		b.globIn, err = os.OpenFile(b.cfg.GlobFifoPath, os.O_RDWR, 0)
		if err != nil {
			return &IoError{Op: "open glob fifo", Err: err}
		}
	}
	if b.cfg.FeedbackFifoPath != "" {
		b.feedbackIn, err = os.OpenFile(b.cfg.FeedbackFifoPath, os.O_RDWR, 0)
		if err != nil {
			return &IoError{Op: "open feedback fifo", Err: err}
		}
	}

	if err := b.startSandbox(); err != nil {
		return err
	}
	b.wireSender()

	b.wakeR, b.wakeW, err = os.Pipe()
	if err != nil {
		return &IoError{Op: "wake pipe", Err: err}
	}

	termConn := connection.New(os.Stdin, b.ptmx, connection.Terminal)
	shellConn := connection.New(b.ptmx, os.Stdout, connection.Executing)
	b.termScan = NewScanner(termConn, b.table, b.sess)
	b.shellScan = NewScanner(shellConn, b.table, b.sess)

	b.watchSignals()
	go func() {
		_ = b.child.Wait()
		_, _ = b.wakeW.Write([]byte{wakeChild})
	}()

	b.logger.Debug("bridge started",
		"session", b.id, "shell", b.cfg.ShellPath, "pid", shellCmd.Process.Pid)
	return nil
}

// shellCommand builds the child invocation: bash is pointed at the
// init file with --rcfile; zsh finds it through ZDOTDIR.
func (b *Bridge) shellCommand() (*exec.Cmd, error) {
	initFile := b.cfg.InitFile
	if len(b.cfg.InitSnippets) > 0 {
		combined, err := b.writeCombinedRC()
		if err != nil {
			return nil, err
		}
		initFile = combined
	}

	var cmd *exec.Cmd
	switch b.cfg.ShellKind {
	case sequence.Zsh:
		cmd = exec.Command(b.cfg.ShellPath, "-i")
		cmd.Env = os.Environ()
		if initFile != "" {
			cmd.Env = append(cmd.Env, "ZDOTDIR="+filepath.Dir(initFile))
		}
	default:
		if initFile != "" {
			cmd = exec.Command(b.cfg.ShellPath, "--rcfile", initFile, "-i")
		} else {
			cmd = exec.Command(b.cfg.ShellPath, "-i")
		}
		cmd.Env = os.Environ()
	}
	return cmd, nil
}

func (b *Bridge) writeCombinedRC() (string, error) {
	f, err := os.CreateTemp("", "seer-rc-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if b.cfg.InitFile != "" {
		fmt.Fprintf(f, "source %q\n", b.cfg.InitFile)
	}
	for _, s := range b.cfg.InitSnippets {
		fmt.Fprintln(f, s)
	}
	b.tmpRC = f.Name()
	return f.Name(), nil
}

// startSandbox forks the hidden non-interactive shell that runs glob
// expansions, stdin fed expansion requests, output appended to the
// glob fifo by the requests themselves.
func (b *Bridge) startSandbox() error {
	if b.cfg.GlobFifoPath == "" {
		return nil
	}
	r, w, err := os.Pipe()
	if err != nil {
		return &IoError{Op: "sandbox pipe", Err: err}
	}
	b.sandbox = exec.Command(b.cfg.ShellPath)
	b.sandbox.Stdin = r
	b.sandbox.Stdout = nil
	b.sandbox.Stderr = nil
	if err := b.sandbox.Start(); err != nil {
		return &PtyError{Err: fmt.Errorf("sandbox shell: %w", err)}
	}
	r.Close()
	b.globGate = asyncio.MakeIoSwitch(w)
	return nil
}

// wireSender connects the outbound channels: expansion requests to the
// sandbox shell, cmd/order records to the command fifo (if any) and to
// the in-process command decoder.
func (b *Bridge) wireSender() {
	var globW io.Writer
	if b.globGate != nil {
		globW = asyncio.MakeAsynk(b.globGate, 8192)
	}

	tap := decoderTap{dec: b.cmdDec}
	var cmdW io.Writer = tap
	if b.cfg.CmdFifoPath != "" {
		if f, err := os.OpenFile(b.cfg.CmdFifoPath, os.O_RDWR, 0); err == nil {
			b.cmdGate = asyncio.MakeIoSwitch(f)
			cmdW = io.MultiWriter(asyncio.MakeAsynk(b.cmdGate, 8192), tap)
		} else {
			b.logger.Warn("cmd fifo unavailable", "err", err)
		}
	}

	b.sender = NewSender(globW, cmdW, b.cfg.ExpandCommand, b.cfg.GlobFifoPath)
}

// decoderTap feeds the in-process command decoder synchronously from
// the sender's write path.
type decoderTap struct {
	dec *protocol.CommandDecoder
}

func (t decoderTap) Write(p []byte) (int, error) {
	t.dec.Feed(p)
	return len(p), nil
}

func (b *Bridge) watchSignals() {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			if err := pty.InheritSize(os.Stdin, b.ptmx); err != nil {
				b.logger.Warn("resize failed", "err", err)
			}
		}
	}()
	winch <- syscall.SIGWINCH

	fatal := make(chan os.Signal, 1)
	signal.Notify(fatal, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP)
	go func() {
		<-fatal
		_, _ = b.wakeW.Write([]byte{wakeSignal})
	}()
}

func (b *Bridge) loop() error {
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return &IoError{Op: "raw mode", Err: err}
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	for {
		fds := []unix.PollFd{
			{Fd: int32(os.Stdin.Fd()), Events: unix.POLLIN},
			{Fd: int32(b.ptmx.Fd()), Events: unix.POLLIN},
			{Fd: int32(b.wakeR.Fd()), Events: unix.POLLIN},
		}
		globIdx, fbIdx := -1, -1
		if b.globIn != nil {
			globIdx = len(fds)
			fds = append(fds, unix.PollFd{Fd: int32(b.globIn.Fd()), Events: unix.POLLIN})
		}
		if b.feedbackIn != nil && !b.disabled {
			fbIdx = len(fds)
			fds = append(fds, unix.PollFd{Fd: int32(b.feedbackIn.Fd()), Events: unix.POLLIN})
		}

		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return &IoError{Op: "poll", Err: err}
		}

		ready := func(i int) bool {
			return i >= 0 && fds[i].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
		}

		if ready(2) {
			buf := make([]byte, 16)
			n, _ := b.wakeR.Read(buf)
			for _, c := range buf[:n] {
				if c == wakeSignal {
					b.signalled = true
				}
				b.sess.Actions.PushLatest(action.Exit)
			}
		}
		if ready(0) {
			if err := b.pump(b.termScan); err != nil {
				return err
			}
		}
		if ready(1) {
			if err := b.pump(b.shellScan); err != nil {
				return err
			}
		}
		if ready(globIdx) {
			if err := b.readGlob(); err != nil {
				return err
			}
		}
		if ready(fbIdx) {
			if err := b.readFeedback(); err != nil {
				return err
			}
		}

		done, err := b.drainActions()
		if done || err != nil {
			return err
		}
	}
}

// pump runs one read-scan-write round on a connection, or a bare
// passthrough once the bridge has been disabled.
func (b *Bridge) pump(s *Scanner) error {
	if b.disabled {
		window, status, err := s.Conn().Read()
		switch status {
		case connection.ReadExit:
			b.sess.Actions.PushLatest(action.Exit)
			return nil
		case connection.ReadErr:
			return b.classifyReadErr(s, err)
		}
		if _, err := s.Conn().Pass(0, len(window)); err != nil {
			return &IoError{Op: "passthrough", Err: err}
		}
		return nil
	}

	status, err := s.Pump()
	switch status {
	case connection.ReadExit:
		b.sess.Actions.PushLatest(action.Exit)
	case connection.ReadErr:
		return b.classifyReadErr(s, err)
	}
	return nil
}

// classifyReadErr maps EIO on the shell fd to graceful termination;
// anything else is fatal.
func (b *Bridge) classifyReadErr(s *Scanner, err error) error {
	if s == b.shellScan && errors.Is(err, unix.EIO) {
		b.sess.Actions.PushLatest(action.Exit)
		return nil
	}
	return &IoError{Op: "read", Err: err}
}

func (b *Bridge) readGlob() error {
	buf := make([]byte, 4096)
	n, err := b.globIn.Read(buf)
	if n > 0 {
		b.decoder.Feed(buf[:n])
	}
	if err != nil && err != io.EOF {
		return &IoError{Op: "glob read", Err: err}
	}
	return nil
}

func (b *Bridge) readFeedback() error {
	buf := make([]byte, 1024)
	n, err := b.feedbackIn.Read(buf)
	if n > 0 {
		for _, rec := range b.fbReader.Feed(buf[:n]) {
			b.handleFeedback(rec)
		}
	}
	if err != nil && err != io.EOF {
		return &IoError{Op: "feedback read", Err: err}
	}
	return nil
}

func (b *Bridge) handleFeedback(rec feedback.Record) {
	switch rec.Kind {
	case feedback.FileRecord:
		atPrompt := b.shellScan.Conn().Level == connection.AtPrompt
		text := b.sess.InsertText(rec.Name, atPrompt, !b.cfg.NoSmartWhitespace,
			b.shellScan.HoldoverIsLoneSpace())
		if _, err := b.ptmx.Write(text); err != nil {
			b.logger.Warn("file insert failed", "err", err)
		}
	case feedback.KeyRecord:
		if _, err := b.ptmx.Write([]byte{rec.Key}); err != nil {
			b.logger.Warn("key forward failed", "err", err)
		}
	case feedback.XidRecord:
		b.rendererXid = rec.Xid
		b.logger.Debug("renderer attached", "xid", rec.Xid)
	}
}

// drainActions empties the queue once per loop round, FIFO.
func (b *Bridge) drainActions() (done bool, err error) {
	for _, a := range b.sess.Actions.PopAll() {
		switch a.Kind {
		case action.Exit:
			if b.signalled {
				return true, fmt.Errorf("bridge: %w", ErrSignalExit)
			}
			return true, nil

		case action.Disable:
			b.disable()

		case action.SendCmd, action.SendPwd:
			if b.disabled || b.suspended {
				continue
			}
			if err := b.sender.SendCmd(b.sess.Pwd, b.sess.Cmd.Text()); err != nil {
				b.logger.Warn("channel write failed; disabling", "err", err)
				b.disable()
			}

		case action.Toggle:
			b.suspended = !b.suspended
			if !b.suspended {
				b.sess.Actions.PushLatest(action.SendCmd)
			}
			b.logger.Debug("display toggled", "suspended", b.suspended)

		case action.Refocus:
			b.logger.Debug("refocus requested", "xid", b.rendererXid)

		case action.SendLost, action.SendUp, action.SendDown,
			action.SendPgUp, action.SendPgDown:
			if b.disabled || b.suspended {
				continue
			}
			if err := b.sender.SendOrder(a.Kind); err != nil {
				b.logger.Warn("order write failed; disabling", "err", err)
				b.disable()
			}
		}
	}
	return false, nil
}

// disable latches the session into passthrough for its remainder.
func (b *Bridge) disable() {
	if b.disabled {
		return
	}
	b.disabled = true
	if null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0); err == nil {
		if b.globGate != nil {
			b.globGate.Enable(null)
		}
		if b.cmdGate != nil {
			b.cmdGate.Enable(null)
		}
	}
	fmt.Fprint(os.Stderr, "(viewglob disabled)")
}

func (b *Bridge) cleanup() {
	if b.child != nil && b.child.Process != nil {
		_ = b.child.Process.Signal(syscall.SIGHUP)
	}
	if b.sandbox != nil && b.sandbox.Process != nil {
		_ = b.sandbox.Process.Kill()
		_ = b.sandbox.Wait()
	}
	if b.ptmx != nil {
		b.ptmx.Close()
	}
	for _, f := range []*os.File{b.globIn, b.feedbackIn, b.wakeR, b.wakeW} {
		if f != nil {
			f.Close()
		}
	}
	if b.tmpRC != "" {
		os.Remove(b.tmpRC)
	}
	b.logger.Debug("bridge stopped", "session", b.id)
}

// Model exposes the exhibit model, the renderer's subscription point.
func (b *Bridge) Model() *directory.Model { return b.model }

// DisplayCmd is the last command text acknowledged on the command
// channel.
func (b *Bridge) DisplayCmd() string { return b.displayCmd }
