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

// Package protocol decodes the glob channel's directory-state frames
// and the command channel's cmd:/order: records.
package protocol

import (
	"fmt"

	"github.com/thyth/seer/internal/directory"
	"github.com/thyth/seer/internal/filebox"
)

// FrameState names the phase of the per-byte FSM.
type FrameState int

const (
	Done FrameState = iota
	SelectedCount
	FileCount
	HiddenCount
	DirName
	Limbo
	FileState
	FileType
	FileName
)

func (s FrameState) String() string {
	switch s {
	case Done:
		return "done"
	case SelectedCount:
		return "selected-count"
	case FileCount:
		return "file-count"
	case HiddenCount:
		return "hidden-count"
	case DirName:
		return "dir-name"
	case Limbo:
		return "limbo"
	case FileState:
		return "file-state"
	case FileType:
		return "file-type"
	case FileName:
		return "file-name"
	default:
		return "unknown"
	}
}

// Error reports a malformed or unexpected token in the glob channel.
type Error struct {
	State FrameState
	Byte  byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol: unexpected byte %q in state %s", e.Byte, e.State)
}

// Decoder is the line-oriented FSM reading the glob channel's frames
// into a directory.Model. Feed tolerates arbitrary split points
// across reads: the partially-accumulated field is itself the
// holdover — there is no separate holdover buffer because, unlike
// Connection, this decoder has no passthrough bytes to account for.
//
// Grammar:
//
//	frame      := { dir_record }+ "\n"
//	dir_record := selected SP total SP hidden SP dir_name "\n" { file }*
//	file       := "\t" sel SP type SP name "\n"
type Decoder struct {
	Model *directory.Model

	// OnProtocolError, if set, is called for every malformed token. The
	// frame in progress is discarded: remaining bytes up to the next
	// blank-line terminator are dropped, and the next well formed
	// frame resyncs normally.
	OnProtocolError func(error)
	// OnFrame, if set, is called once a frame's rearrange/cull commits.
	OnFrame func()

	state  FrameState
	field  []byte
	resync bool
	prevNL bool

	selected, total, hidden int
	dirName                 string
	rank                    int
	listing                 *directory.Listing

	fileSel  filebox.Selection
	fileType filebox.FileType
}

// NewDecoder builds a Decoder writing into model.
func NewDecoder(model *directory.Model) *Decoder {
	return &Decoder{Model: model, state: Done}
}

// Feed processes a chunk of bytes from the glob channel, byte by byte.
func (d *Decoder) Feed(data []byte) {
	for _, b := range data {
		d.FeedByte(b)
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (d *Decoder) protoErr(b byte) {
	if d.OnProtocolError != nil {
		d.OnProtocolError(&Error{State: d.state, Byte: b})
	}
	d.resync = true
	d.prevNL = false
}

// FeedByte advances the FSM by exactly one byte.
func (d *Decoder) FeedByte(b byte) {
	if d.resync {
		if d.prevNL && b == '\n' {
			// The poisoned frame is discarded uncommitted; whatever it
			// half-added stays unreferenced and falls to the next
			// frame's cull.
			d.resync = false
			d.prevNL = false
			d.listing = nil
			d.state = Done
			return
		}
		d.prevNL = b == '\n'
		return
	}

	switch d.state {
	case Done:
		d.feedDone(b)
	case SelectedCount:
		d.feedCountField(b, &d.selected, FileCount)
	case FileCount:
		d.feedCountField(b, &d.total, HiddenCount)
	case HiddenCount:
		d.feedCountField(b, &d.hidden, DirName)
	case DirName:
		d.feedDirName(b)
	case Limbo:
		d.feedLimbo(b)
	case FileState:
		d.feedFileState(b)
	case FileType:
		d.feedFileType(b)
	case FileName:
		d.feedFileName(b)
	}
}

func (d *Decoder) feedDone(b byte) {
	if b == '\n' {
		// stray blank line between frames
		return
	}
	if !isDigit(b) {
		d.protoErr(b)
		return
	}
	d.Model.UnmarkAll()
	d.rank = 0
	d.field = append(d.field[:0], b)
	d.state = SelectedCount
}

// feedCountField accumulates a decimal field shared by the
// selected/total/hidden counts, dispatching to next on the delimiting
// space.
func (d *Decoder) feedCountField(b byte, dst *int, next FrameState) {
	if isDigit(b) {
		d.field = append(d.field, b)
		return
	}
	if b != ' ' {
		d.protoErr(b)
		return
	}
	*dst = atoi(d.field)
	d.field = d.field[:0]
	d.state = next
}

func (d *Decoder) feedDirName(b byte) {
	if b != '\n' {
		d.field = append(d.field, b)
		return
	}
	d.dirName = string(d.field)
	d.field = d.field[:0]
	d.rank++
	d.listing = d.Model.Add(d.dirName, d.rank, d.selected, d.total, d.hidden)
	d.state = Limbo
}

func (d *Decoder) feedLimbo(b byte) {
	switch {
	case b == '\t':
		d.state = FileState
	case b == '\n':
		d.endFrame()
	case isDigit(b):
		// another dir_record within the same frame: no unmark, rank
		// continues from where the previous record left off.
		d.field = append(d.field[:0], b)
		d.state = SelectedCount
	default:
		d.protoErr(b)
	}
}

func (d *Decoder) feedFileState(b byte) {
	if len(d.field) == 0 {
		sel, ok := parseSelection(b)
		if !ok {
			d.protoErr(b)
			return
		}
		d.fileSel = sel
		d.field = append(d.field, b)
		return
	}
	if b != ' ' {
		d.protoErr(b)
		return
	}
	d.field = d.field[:0]
	d.state = FileType
}

func (d *Decoder) feedFileType(b byte) {
	if len(d.field) == 0 {
		ft, ok := parseFileType(b)
		if !ok {
			d.protoErr(b)
			return
		}
		d.fileType = ft
		d.field = append(d.field, b)
		return
	}
	if b != ' ' {
		d.protoErr(b)
		return
	}
	d.field = d.field[:0]
	d.state = FileName
}

func (d *Decoder) feedFileName(b byte) {
	if b != '\n' {
		d.field = append(d.field, b)
		return
	}
	name := string(d.field)
	d.field = d.field[:0]
	if d.listing != nil {
		d.listing.Files.Add(name, d.fileType, d.fileSel)
	}
	d.state = Limbo
}

func (d *Decoder) endFrame() {
	d.Model.Rearrange()
	d.Model.Cull()
	d.listing = nil
	d.state = Done
	if d.OnFrame != nil {
		d.OnFrame()
	}
}

func atoi(field []byte) int {
	n := 0
	for _, b := range field {
		n = n*10 + int(b-'0')
	}
	return n
}

func parseSelection(b byte) (filebox.Selection, bool) {
	switch b {
	case '-':
		return filebox.No, true
	case '~':
		return filebox.Maybe, true
	case '*':
		return filebox.Yes, true
	default:
		return 0, false
	}
}

func parseFileType(b byte) (filebox.FileType, bool) {
	switch b {
	case 'r':
		return filebox.Regular, true
	case 'e':
		return filebox.Executable, true
	case 'd':
		return filebox.Directory, true
	case 'b':
		return filebox.BlockDev, true
	case 'c':
		return filebox.CharDev, true
	case 'f':
		return filebox.Fifo, true
	case 's':
		return filebox.Socket, true
	case 'y':
		return filebox.Symlink, true
	default:
		return 0, false
	}
}
