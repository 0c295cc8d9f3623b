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

// Package filebox holds the per-directory file set: ordered,
// filterable by hidden, truncatable by a display limit, with a
// mark/cull lifecycle driven by the protocol decoder's frame
// boundaries.
package filebox

import "sort"

type FileType int

const (
	Regular FileType = iota
	Executable
	Directory
	BlockDev
	CharDev
	Fifo
	Socket
	Symlink
)

type Selection int

const (
	No Selection = iota
	Maybe
	Yes
)

type DisplayCategory int

const (
	Indeterminate DisplayCategory = iota
	Reveal
	Mask
)

// Ordering selects how entries are sorted, chosen once at startup:
// ls is pure lexicographic, win is directories-first.
type Ordering int

const (
	LS Ordering = iota
	Win
)

// FileEntry is one file within a FileBox.
type FileEntry struct {
	Name      string
	Type      FileType
	Selection Selection
	DispCat   DisplayCategory
	Marked    bool
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}

// FileBox is an ordered, filterable set of FileEntry.
type FileBox struct {
	Ordering         Ordering
	OptimalWidth     int
	ShowHidden       bool
	FileDisplayLimit int // 0 = unlimited

	entries    []*FileEntry
	nDisplayed int
}

func New(ordering Ordering, displayLimit int) *FileBox {
	return &FileBox{Ordering: ordering, FileDisplayLimit: displayLimit}
}

func (fb *FileBox) NDisplayed() int { return fb.nDisplayed }

func (fb *FileBox) Entries() []*FileEntry { return fb.entries }

func (fb *FileBox) find(name string) *FileEntry {
	for _, fi := range fb.entries {
		if fi.Name == name {
			return fi
		}
	}
	return nil
}

// insertSorted inserts fi into fb.entries keeping the configured
// ordering; Win ordering treats fi.Type as already set.
func (fb *FileBox) insertSorted(fi *FileEntry) {
	idx := sort.Search(len(fb.entries), func(i int) bool {
		return !fb.entryLess(fb.entries[i], fi)
	})
	fb.entries = append(fb.entries, nil)
	copy(fb.entries[idx+1:], fb.entries[idx:])
	fb.entries[idx] = fi
}

func (fb *FileBox) entryLess(a, b *FileEntry) bool {
	if fb.Ordering == Win {
		aDir := a.Type == Directory
		bDir := b.Type == Directory
		if aDir != bDir {
			return aDir
		}
	}
	return a.Name < b.Name
}

// classify determines an entry's DisplayCategory and, if it should be
// admitted to the displayed pool, updates nDisplayed.
func (fb *FileBox) classify(fi *FileEntry) {
	if isHidden(fi.Name) && !fb.ShowHidden {
		fi.DispCat = Mask
	} else {
		fi.DispCat = Reveal
	}

	switch fi.DispCat {
	case Reveal:
		if fb.FileDisplayLimit == 0 || fb.nDisplayed < fb.FileDisplayLimit {
			fb.nDisplayed++
		} else if fi.Selection == Yes {
			fb.nDisplayed++
		}
	case Mask:
		if fi.Selection == Yes {
			fb.nDisplayed++
		}
	}
}

// Add inserts or updates a FileEntry and marks it.
func (fb *FileBox) Add(name string, t FileType, sel Selection) {
	if fi := fb.find(name); fi != nil {
		if fi.Type != t {
			// Type change can move an entry's position under Win
			// ordering; remove and reinsert.
			fb.remove(fi)
			fi.Type = t
			fi.Selection = sel
			fi.Marked = true
			fb.insertSorted(fi)
		} else {
			fi.Selection = sel
			fi.Marked = true
		}
		return
	}
	fi := &FileEntry{Name: name, Type: t, Selection: sel, Marked: true}
	fb.insertSorted(fi)
}

func (fb *FileBox) remove(fi *FileEntry) {
	for i, e := range fb.entries {
		if e == fi {
			fb.entries = append(fb.entries[:i], fb.entries[i+1:]...)
			return
		}
	}
}

// BeginRead unmarks every entry and resets nDisplayed, the first half
// of the mark/cull cycle.
func (fb *FileBox) BeginRead() {
	for _, fi := range fb.entries {
		fi.Marked = false
	}
	fb.nDisplayed = 0
}

// Flush re-derives display admission for every currently-marked entry.
// Beyond that it is the signal boundary the renderer uses to realize
// mark state into widgets.
func (fb *FileBox) Flush() {
	fb.nDisplayed = 0
	for _, fi := range fb.entries {
		if fi.Marked {
			fb.classify(fi)
		}
	}
}

// Cull removes unmarked entries. It assumes Flush has already run this
// frame and recomputed nDisplayed from the surviving marked entries, so
// dropping the unmarked ones here requires no further bookkeeping.
func (fb *FileBox) Cull() {
	kept := fb.entries[:0]
	for _, fi := range fb.entries {
		if fi.Marked {
			kept = append(kept, fi)
		}
	}
	fb.entries = kept
}

// SetShowHidden toggles the hidden-file filter; callers must Flush
// afterward to re-derive display admission. Two toggles restore the
// admitted set.
func (fb *FileBox) SetShowHidden(show bool) {
	fb.ShowHidden = show
}
