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
package main

import (
	"github.com/thyth/seer/internal/bridge"
	"github.com/thyth/seer/internal/config"
	"github.com/thyth/seer/internal/directory"
	"github.com/thyth/seer/internal/feedback"
	"github.com/thyth/seer/internal/filebox"
	"github.com/thyth/seer/internal/protocol"
	"github.com/thyth/seer/internal/sequence"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"

	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

const version = "2.0.4"

// arrayFlags: flag.Value interface implementing type to collect multiple values of the same argument
type arrayFlags []string

func (_ *arrayFlags) String() string      { return "" }
func (af *arrayFlags) Set(v string) error { *af = append(*af, v); return nil }

func main() {
	shellKind := "bash"
	shellPath := ""
	initFile := ""
	noSmart := false
	printVersion := false
	ordering := "ls"
	displayLimit := 0
	expandCmd := ""
	globFifo := ""
	cmdFifo := ""
	feedbackFifo := ""
	initYAML := ""
	exhibitMode := false
	debug := false
	var initSnippets arrayFlags

	flag.StringVar(&shellKind, "shell", "bash", "Shell kind (bash | zsh)")
	flag.StringVar(&shellPath, "shell-path", "", "Shell executable path (defaults to the kind)")
	flag.StringVar(&initFile, "init", "", "Shell-init file path")
	flag.BoolVar(&noSmart, "no-smart-insert", false, "Disable smart whitespace around inserted filenames")
	flag.BoolVar(&printVersion, "version", false, "Display version")
	flag.StringVar(&ordering, "order", "ls", "File ordering (ls | win)")
	flag.IntVar(&displayLimit, "file-display-limit", 0, "Cap on files shown per directory (0 = unlimited)")
	flag.StringVar(&expandCmd, "expand-command", "", "Glob-helper executable invoked per expansion")
	flag.StringVar(&globFifo, "glob-fifo", "", "Named pipe carrying directory-state frames")
	flag.StringVar(&cmdFifo, "cmd-fifo", "", "Named pipe carrying cmd:/order: records")
	flag.StringVar(&feedbackFifo, "feedback-fifo", "", "Named pipe carrying renderer feedback")
	flag.StringVar(&initYAML, "i-yaml", "", "YAML bundle of named init snippets")
	flag.BoolVar(&exhibitMode, "exhibit", false, "Run the headless exhibit (read channels, no shell)")
	flag.BoolVar(&debug, "debug", false, "Verbose logging")
	flag.Var(&initSnippets, "i", "Literal shell-init `snippet`s (repeatable)")
	flag.Parse()

	if printVersion {
		fmt.Printf("seer %s\n", version)
		return
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := buildConfig(shellKind, shellPath, initFile, noSmart, ordering,
		displayLimit, expandCmd, globFifo, cmdFifo, feedbackFifo, initYAML, initSnippets)
	if err != nil {
		logger.Error("bad configuration", "err", err)
		os.Exit(1)
	}

	if exhibitMode {
		if err := runExhibit(cfg, logger); err != nil {
			logger.Error("exhibit failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
		logger.Error("seer must run on a terminal")
		os.Exit(1)
	}

	b := bridge.New(cfg, logger)
	if err := b.Run(); err != nil {
		if errors.Is(err, bridge.ErrSignalExit) {
			os.Exit(1)
		}
		logger.Error("session failed", "err", err)
		os.Exit(1)
	}
}

func buildConfig(shellKind, shellPath, initFile string, noSmart bool,
	ordering string, displayLimit int, expandCmd, globFifo, cmdFifo,
	feedbackFifo, initYAML string, initSnippets []string) (*config.Config, error) {

	cfg := &config.Config{
		ShellPath:         shellPath,
		InitFile:          initFile,
		NoSmartWhitespace: noSmart,
		FileDisplayLimit:  displayLimit,
		ExpandCommand:     expandCmd,
		GlobFifoPath:      globFifo,
		CmdFifoPath:       cmdFifo,
		FeedbackFifoPath:  feedbackFifo,
		InitSnippets:      initSnippets,
		InitYAMLPath:      initYAML,
	}

	switch shellKind {
	case "bash":
		cfg.ShellKind = sequence.Bash
	case "zsh":
		cfg.ShellKind = sequence.Zsh
	default:
		return nil, fmt.Errorf("unknown shell kind %q", shellKind)
	}
	if cfg.ShellPath == "" {
		cfg.ShellPath = shellKind
	}

	switch ordering {
	case "ls":
		cfg.Ordering = filebox.LS
	case "win":
		cfg.Ordering = filebox.Win
	default:
		return nil, fmt.Errorf("unknown ordering %q", ordering)
	}

	if initYAML != "" {
		bundle, err := config.LoadInitBundle(initYAML)
		if err != nil {
			return nil, fmt.Errorf("init bundle: %w", err)
		}
		cfg.InitSnippets = append(cfg.InitSnippets, bundle.SnippetsFor(cfg.ShellKind)...)
	}

	return cfg, nil
}

// runExhibit is the renderer-side half run headless: it reads the glob
// and command channels into the directory model and announces itself
// on the feedback channel, logging each committed frame.
func runExhibit(cfg *config.Config, logger *log.Logger) error {
	if cfg.GlobFifoPath == "" {
		return fmt.Errorf("exhibit mode needs -glob-fifo")
	}
	globIn, err := os.OpenFile(cfg.GlobFifoPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer globIn.Close()

	var cmdIn *os.File
	if cfg.CmdFifoPath != "" {
		if cmdIn, err = os.OpenFile(cfg.CmdFifoPath, os.O_RDWR, 0); err != nil {
			return err
		}
		defer cmdIn.Close()
	}

	if cfg.FeedbackFifoPath != "" {
		fb, err := os.OpenFile(cfg.FeedbackFifoPath, os.O_RDWR, 0)
		if err != nil {
			return err
		}
		defer fb.Close()
		if err := feedback.New(fb).Xid(uint64(os.Getpid())); err != nil {
			return err
		}
	}

	model := directory.New(cfg.Ordering, cfg.FileDisplayLimit)
	dec := protocol.NewDecoder(model)
	dec.OnProtocolError = func(err error) {
		logger.Warn("glob frame discarded", "err", err)
	}
	dec.OnFrame = func() {
		for _, l := range model.Listings() {
			logger.Info("dir", "rank", l.Rank, "name", l.Name,
				"label", l.CountLabel(false, cfg.FileDisplayLimit),
				"files", len(l.Files.Entries()))
		}
	}

	cmdDec := &protocol.CommandDecoder{
		OnCmd:   func(text string) { logger.Info("cmd", "text", text) },
		OnOrder: func(kw string) { logger.Info("order", "keyword", kw) },
	}

	if cmdIn != nil {
		go func() {
			buf := make([]byte, 1024)
			for {
				n, err := cmdIn.Read(buf)
				if n > 0 {
					cmdDec.Feed(buf[:n])
				}
				if err != nil {
					return
				}
			}
		}()
	}

	buf := make([]byte, 4096)
	for {
		n, err := globIn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
