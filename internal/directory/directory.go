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

// Package directory implements the ranked, incrementally-updated
// collection of directory listings the renderer displays.
package directory

import (
	"fmt"

	"github.com/thyth/seer/internal/filebox"
)

// Listing is one directory entry in the model.
type Listing struct {
	Name    string
	Rank    int
	OldRank int
	Marked  bool

	Selected int
	Total    int
	Hidden   int

	Files *filebox.FileBox
}

// IsNew reports whether this Listing has never been ranked before.
func (l *Listing) IsNew() bool { return l.OldRank <= 0 }

// CountLabel renders the directory's count label: restricted
// directories, truncated listings, and the plain counts.
func (l *Listing) CountLabel(showHidden bool, displayLimit int) string {
	if l.Total == 0 {
		return "(Restricted)"
	}
	nDisplayed := l.Total
	if !showHidden {
		nDisplayed -= l.Hidden
	}
	label := fmt.Sprintf("%d %d %d", l.Selected, l.Total, l.Hidden)
	if displayLimit != 0 && nDisplayed > displayLimit {
		label += " [Results truncated]"
	}
	return label
}

// Model is the ranked collection of Listings.
type Model struct {
	Ordering filebox.Ordering
	// DisplayLimit caps the files shown per directory; 0 is unlimited.
	// Applied to every FileBox the model creates.
	DisplayLimit int

	listings []*Listing
	byName   map[string]*Listing
}

func New(ordering filebox.Ordering, displayLimit int) *Model {
	return &Model{
		Ordering:     ordering,
		DisplayLimit: displayLimit,
		byName:       make(map[string]*Listing),
	}
}

func (m *Model) Listings() []*Listing { return m.listings }

// UnmarkAll clears Marked on every Listing and every FileEntry inside
// each Listing's FileBox, the frame-entry half of the mark/cull cycle.
func (m *Model) UnmarkAll() {
	for _, l := range m.listings {
		l.Marked = false
		l.Files.BeginRead()
	}
}

// Add creates or updates a Listing by name and marks it.
func (m *Model) Add(name string, rank, selected, total, hidden int) *Listing {
	if l, ok := m.byName[name]; ok {
		l.OldRank = l.Rank
		l.Rank = rank
		l.Selected, l.Total, l.Hidden = selected, total, hidden
		l.Marked = true
		return l
	}
	l := &Listing{
		Name: name, Rank: rank, OldRank: 0, Marked: true,
		Selected: selected, Total: total, Hidden: hidden,
		Files: filebox.New(m.Ordering, m.DisplayLimit),
	}
	m.byName[name] = l
	m.listings = append(m.listings, l)
	return l
}

// Rearrange walks ranks 1..N, reordering m.listings to match rank
// order. Afterward the visible ranks are exactly {1..N}.
func (m *Model) Rearrange() {
	ordered := make([]*Listing, len(m.listings))
	copy(ordered, m.listings)
	for i := 0; i < len(ordered); i++ {
		minIdx := i
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].Rank < ordered[minIdx].Rank {
				minIdx = j
			}
		}
		ordered[i], ordered[minIdx] = ordered[minIdx], ordered[i]
	}
	m.listings = ordered
}

// Cull removes every Listing not marked since the last UnmarkAll, and
// culls each surviving Listing's FileBox.
func (m *Model) Cull() {
	kept := m.listings[:0]
	for _, l := range m.listings {
		if !l.Marked {
			delete(m.byName, l.Name)
			continue
		}
		l.Files.Flush()
		l.Files.Cull()
		kept = append(kept, l)
	}
	m.listings = kept
}

// OrderKind names the viewport adjustments the renderer understands:
// up/down move by one entry, pgup/pgdown by a full page, lost tells
// the renderer the command line is out of sync.
type OrderKind int

const (
	OrderLost OrderKind = iota
	OrderUp
	OrderDown
	OrderPgUp
	OrderPgDown
)

func (k OrderKind) Keyword() string {
	switch k {
	case OrderLost:
		return "lost"
	case OrderUp:
		return "up"
	case OrderDown:
		return "down"
	case OrderPgUp:
		return "pgup"
	case OrderPgDown:
		return "pgdown"
	default:
		return ""
	}
}
