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

// Package action implements the single-threaded queue of deferred
// side effects enqueued by the matcher and drained once per
// event-loop iteration.
package action

type Kind int

const (
	Exit Kind = iota
	Disable
	SendCmd
	SendPwd
	Toggle
	Refocus
	SendLost
	SendUp
	SendDown
	SendPgUp
	SendPgDown
)

func (k Kind) String() string {
	switch k {
	case Exit:
		return "exit"
	case Disable:
		return "disable"
	case SendCmd:
		return "send-cmd"
	case SendPwd:
		return "send-pwd"
	case Toggle:
		return "toggle"
	case Refocus:
		return "refocus"
	case SendLost:
		return "send-lost"
	case SendUp:
		return "send-up"
	case SendDown:
		return "send-down"
	case SendPgUp:
		return "send-pgup"
	case SendPgDown:
		return "send-pgdown"
	default:
		return "unknown"
	}
}

// Action is a queued side effect. Most kinds carry no payload;
// SendCmd fires against whatever the caller's current
// pwd/command-line state is at drain time rather than a snapshot
// taken at enqueue time.
type Action struct {
	Kind Kind
}

// Queue holds pending actions between loop rounds. Push appends
// without deduplication; PushLatest collapses a repeated kind to its
// most recent occurrence, so a burst of prompt transitions within one
// round settles on the latest state; PopAll drains FIFO.
type Queue struct {
	items []Action
}

func (q *Queue) Push(k Kind) {
	q.items = append(q.items, Action{Kind: k})
}

// PushLatest removes any existing queued action of the same kind
// before appending, so a burst of same-kind pushes within one
// iteration collapses to the latest.
func (q *Queue) PushLatest(k Kind) {
	kept := q.items[:0]
	for _, a := range q.items {
		if a.Kind != k {
			kept = append(kept, a)
		}
	}
	q.items = append(kept, Action{Kind: k})
}

func (q *Queue) Empty() bool { return len(q.items) == 0 }

// PopAll drains the entire queue in FIFO order (oldest push first) and
// clears it, per the "drained FIFO within a loop iteration" rule.
func (q *Queue) PopAll() []Action {
	out := q.items
	q.items = nil
	return out
}
