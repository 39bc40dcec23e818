// Copyright 2026 The Warden Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package warden

import (
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

// LogRecord is a single line of daemon output.
type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is a bounded ring of LogRecords.  It is an io.Writer, so that a
// log.Logger can write into it, and it lets readers block until new lines
// arrive.  The id of the newest record doubles as an ETag.
type Log struct {
	records []LogRecord
	next    int // total records ever written; next%len(records) is the slot
	id      int64
	cvs     map[*sync.Cond]bool
	mx      sync.Mutex
}

// Write implements io.Writer.  Each line becomes one record.
func (l *Log) Write(b []byte) (int, error) {
	str := strings.Trim(string(b), "\n")
	now := time.Now()
	l.mx.Lock()
	for _, line := range strings.Split(str, "\n") {
		slot := &l.records[l.next%len(l.records)]
		l.id++
		slot.Id = l.id
		slot.Time = now
		slot.Text = line
		l.next++
	}
	for cv := range l.cvs {
		cv.Broadcast()
	}
	l.mx.Unlock()
	return len(b), nil
}

// Clear discards all records.  The id is reseeded from the clock so that
// cached ETags held by clients become stale.
func (l *Log) Clear() {
	l.mx.Lock()
	l.next = 0
	l.id = time.Now().UnixNano()
	l.mx.Unlock()
}

// GetRecords returns the stored records, oldest first, and the current id.
// If last equals the current id nothing has changed and nil is returned.
func (l *Log) GetRecords(last int64) ([]LogRecord, int64) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.id == last {
		return nil, last
	}
	cnt := l.next
	if cnt > len(l.records) {
		cnt = len(l.records)
	}
	recs := make([]LogRecord, 0, cnt)
	for i := l.next - cnt; i < l.next; i++ {
		recs = append(recs, l.records[i%len(l.records)])
	}
	return recs, l.id
}

// Id returns the id of the newest record.
func (l *Log) Id() int64 {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.id
}

// Watch waits until the log id differs from last, or the expiration
// passes, and returns the current id.  An expire of 0 polls.
func (l *Log) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&l.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			l.mx.Lock()
			expired = true
			cv.Broadcast()
			l.mx.Unlock()
		})
	} else {
		expired = true
	}

	l.mx.Lock()
	l.cvs[cv] = true
	for l.id == last && !expired {
		cv.Wait()
	}
	delete(l.cvs, cv)
	last = l.id
	l.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// NewLog returns a Log holding up to max records.  A max of zero
// selects MaxLogRecords.
func NewLog(max int) *Log {
	if max <= 0 {
		max = MaxLogRecords
	}
	return &Log{
		records: make([]LogRecord, max),
		id:      time.Now().UnixNano(),
		cvs:     make(map[*sync.Cond]bool),
	}
}
