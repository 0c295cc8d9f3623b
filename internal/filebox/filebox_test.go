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

package filebox

import "testing"

func names(fb *FileBox) []string {
	var out []string
	for _, fi := range fb.Entries() {
		out = append(out, fi.Name)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLSOrdering(t *testing.T) {
	fb := New(LS, 0)
	fb.Add("zoo", Directory, No)
	fb.Add("alpha", Regular, No)
	fb.Add("mid", Executable, No)
	if got := names(fb); !equal(got, []string{"alpha", "mid", "zoo"}) {
		t.Errorf("order = %v", got)
	}
}

func TestWinOrderingDirsFirst(t *testing.T) {
	fb := New(Win, 0)
	fb.Add("aaa", Regular, No)
	fb.Add("zzz", Directory, No)
	fb.Add("mmm", Directory, No)
	if got := names(fb); !equal(got, []string{"mmm", "zzz", "aaa"}) {
		t.Errorf("order = %v", got)
	}
}

func TestTypeChangeResorts(t *testing.T) {
	fb := New(Win, 0)
	fb.Add("aaa", Regular, No)
	fb.Add("bbb", Directory, No)
	// aaa becomes a directory: moves into the directory group.
	fb.Add("aaa", Directory, No)
	if got := names(fb); !equal(got, []string{"aaa", "bbb"}) {
		t.Errorf("order = %v", got)
	}
}

func TestHiddenMaskedUnlessSelected(t *testing.T) {
	fb := New(LS, 0)
	fb.Add(".secret", Regular, No)
	fb.Add("plain", Regular, No)
	fb.Flush()
	if fb.NDisplayed() != 1 {
		t.Errorf("n_displayed = %d, want 1", fb.NDisplayed())
	}

	fb.BeginRead()
	fb.Add(".secret", Regular, Yes)
	fb.Add("plain", Regular, No)
	fb.Flush()
	if fb.NDisplayed() != 2 {
		t.Errorf("selected hidden file not admitted: n_displayed = %d", fb.NDisplayed())
	}
}

func TestHiddenToggleSymmetry(t *testing.T) {
	fb := New(LS, 0)
	fb.Add(".a", Regular, No)
	fb.Add("b", Regular, No)
	fb.Flush()
	before := fb.NDisplayed()

	fb.SetShowHidden(true)
	fb.Flush()
	if fb.NDisplayed() != 2 {
		t.Errorf("show_hidden: n_displayed = %d, want 2", fb.NDisplayed())
	}
	fb.SetShowHidden(false)
	fb.Flush()
	if fb.NDisplayed() != before {
		t.Errorf("double toggle: n_displayed = %d, want %d", fb.NDisplayed(), before)
	}
}

func TestDisplayLimitMonotonicity(t *testing.T) {
	build := func(limit int) *FileBox {
		fb := New(LS, limit)
		fb.Add("a", Regular, No)
		fb.Add("b", Regular, No)
		fb.Add("c", Regular, Yes)
		fb.Add("d", Regular, No)
		fb.Flush()
		return fb
	}
	prev := -1
	for _, limit := range []int{1, 2, 3, 4} {
		n := build(limit).NDisplayed()
		if n < prev {
			t.Errorf("limit %d: n_displayed %d < previous %d", limit, n, prev)
		}
		prev = n
	}
	// Over the limit, only selected entries squeeze in.
	if n := build(1).NDisplayed(); n != 2 {
		t.Errorf("limit 1: n_displayed = %d, want 1 revealed + 1 selected", n)
	}
	if n := build(0).NDisplayed(); n != 4 {
		t.Errorf("unlimited: n_displayed = %d, want 4", n)
	}
}

func TestCullDropsUnmarked(t *testing.T) {
	fb := New(LS, 0)
	fb.Add("a", Regular, No)
	fb.Add("b", Regular, No)
	fb.BeginRead()
	fb.Add("b", Regular, No)
	fb.Flush()
	fb.Cull()
	if got := names(fb); !equal(got, []string{"b"}) {
		t.Errorf("entries = %v", got)
	}
	if fb.NDisplayed() != 1 {
		t.Errorf("n_displayed = %d, want 1", fb.NDisplayed())
	}
}

func TestSelectionUpdateInPlace(t *testing.T) {
	fb := New(LS, 0)
	fb.Add("a", Regular, Maybe)
	fb.Add("a", Regular, Yes)
	entries := fb.Entries()
	if len(entries) != 1 || entries[0].Selection != Yes {
		t.Errorf("entries = %+v", entries)
	}
}
