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

// Package asyncio holds the small io wrappers the bridge's single
// event loop uses without giving up its synchronous read/write
// surface. Asynk runs one draining goroutine behind the facade; the
// loop itself never blocks on a slow downstream.
package asyncio

import (
	"io"
	"runtime"
	"sync"
)

// Asynk is an asynchronous sink writer: writes return immediately as
// long as the internal ring has capacity, even if the upstream writer
// blocks. The bridge wraps the glob and command channel writers with
// it so a slow or stalled renderer never stalls the event loop.
type Asynk struct {
	upstream    io.Writer
	cond        *sync.Cond
	buffer      []byte
	bufferIndex int

	writeNotify chan interface{}
	upstreamErr error
}

// MakeAsynk wraps upstream with a capacity-byte ring buffer.
func MakeAsynk(upstream io.Writer, capacity int) *Asynk {
	asynk := &Asynk{
		upstream:    upstream,
		cond:        sync.NewCond(&sync.Mutex{}),
		buffer:      make([]byte, capacity),
		writeNotify: make(chan interface{}, 1),
	}
	go func(asynk *Asynk) {
		lastTransmittedIndex := 0
		for range asynk.writeNotify {
			asynk.cond.L.Lock()
			nextIndex := asynk.bufferIndex
			asynk.cond.L.Unlock()
			_, asynk.upstreamErr = upstream.Write(asynk.buffer[lastTransmittedIndex:nextIndex])
			lastTransmittedIndex = nextIndex
			if asynk.upstreamErr != nil {
				return
			}
			asynk.cond.L.Lock()
			postWriteIndex := asynk.bufferIndex
			if postWriteIndex == nextIndex {
				asynk.bufferIndex = 0
				lastTransmittedIndex = 0
			}
			asynk.cond.Signal()
			asynk.cond.L.Unlock()
		}
	}(asynk)
	return asynk
}

// Close stops the draining goroutine and propagates to upstream if it
// is also an io.Closer.
func (asynk *Asynk) Close() error {
	if asynk.upstreamErr == nil {
		asynk.upstreamErr = io.EOF
	}
	close(asynk.writeNotify)
	asynk.cond.Broadcast()
	if closer, ok := asynk.upstream.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Write copies p into the ring, signalling the drain goroutine, and
// blocks only if the ring is full and upstream hasn't caught up.
func (asynk *Asynk) Write(p []byte) (int, error) {
	if asynk.upstreamErr != nil {
		return 0, asynk.upstreamErr
	}
	asynk.cond.L.Lock()
	n := copy(asynk.buffer[asynk.bufferIndex:], p)
	asynk.bufferIndex += n
	asynk.cond.L.Unlock()

	select {
	case asynk.writeNotify <- true:
		if len(p) > n {
			runtime.Gosched()
			return asynk.Write(p[n:])
		}
		return n, nil
	default:
		if len(p) > n {
			asynk.cond.L.Lock()
			asynk.cond.Wait()
			asynk.cond.L.Unlock()
			return asynk.Write(p[n:])
		}
		return n, nil
	}
}
