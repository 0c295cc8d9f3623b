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

package action

import "testing"

func kinds(actions []Action) []Kind {
	out := make([]Kind, len(actions))
	for i, a := range actions {
		out[i] = a.Kind
	}
	return out
}

func TestPopAllIsFIFO(t *testing.T) {
	q := &Queue{}
	q.Push(SendCmd)
	q.Push(SendPwd)
	q.Push(Exit)
	got := kinds(q.PopAll())
	want := []Kind{SendCmd, SendPwd, Exit}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
	if !q.Empty() {
		t.Error("queue not drained")
	}
}

func TestPushLatestCollapsesBurst(t *testing.T) {
	q := &Queue{}
	q.PushLatest(SendCmd)
	q.PushLatest(SendPwd)
	q.PushLatest(SendCmd)
	q.PushLatest(SendCmd)
	got := kinds(q.PopAll())
	if len(got) != 2 {
		t.Fatalf("got %v, want 2 entries", got)
	}
	if got[0] != SendPwd || got[1] != SendCmd {
		t.Errorf("got %v, want [SendPwd SendCmd]", got)
	}
}

func TestKindStrings(t *testing.T) {
	for k := Exit; k <= SendPgDown; k++ {
		if k.String() == "unknown" {
			t.Errorf("kind %d has no name", k)
		}
	}
}
