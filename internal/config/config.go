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

// Package config builds the single Config value that main constructs
// once from flags and passes by reference into the bridge and model
// constructors. There is no persisted state; the flag surface is the
// whole configuration surface.
package config

import (
	"os"

	"github.com/thyth/seer/internal/filebox"
	"github.com/thyth/seer/internal/sequence"
	"gopkg.in/yaml.v3"
)

// Config is everything the bridge needs, assembled from the CLI flags
// that built this value.
type Config struct {
	ShellKind         sequence.ShellKind
	ShellPath         string
	InitFile          string
	NoSmartWhitespace bool

	Ordering         filebox.Ordering
	FileDisplayLimit int

	// ExpandCommand names the glob-helper executable invoked in each
	// expansion request; empty selects the default.
	ExpandCommand string

	// InitSnippets are literal -i strings, applied in order before
	// InitYAMLPath's bundle (if any) is loaded.
	InitSnippets []string
	InitYAMLPath string

	GlobFifoPath     string
	CmdFifoPath      string
	FeedbackFifoPath string
}

// InitBundle is the shape decoded from an -i-yaml file: named init
// snippets (prompt separators, nav key bindings) supplementing or
// replacing the literal -i strings.
type InitBundle struct {
	Snippets []InitSnippet `yaml:"snippets"`
}

// InitSnippet is one named shell-init fragment. Shell is optional;
// when empty the snippet applies to both bash and zsh.
type InitSnippet struct {
	Name  string `yaml:"name"`
	Shell string `yaml:"shell,omitempty"`
	Text  string `yaml:"text"`
}

// LoadInitBundle reads and decodes an -i-yaml bundle file.
func LoadInitBundle(path string) (*InitBundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bundle InitBundle
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// SnippetsFor filters an InitBundle's snippets down to the ones that
// apply to kind (either matching kind by name or left shell-agnostic).
func (b *InitBundle) SnippetsFor(kind sequence.ShellKind) []string {
	if b == nil {
		return nil
	}
	var want string
	switch kind {
	case sequence.Bash:
		want = "bash"
	case sequence.Zsh:
		want = "zsh"
	}
	var out []string
	for _, s := range b.Snippets {
		if s.Shell == "" || s.Shell == want {
			out = append(out, s.Text)
		}
	}
	return out
}
