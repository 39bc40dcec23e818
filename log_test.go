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
	"fmt"
	"log"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLog(t *testing.T) {
	Convey("A log ring", t, func() {
		l := NewLog(3)
		recs, id := l.GetRecords(0)
		So(recs, ShouldBeEmpty)

		for i := 0; i < 5; i++ {
			fmt.Fprintf(l, "line %d\n", i)
		}
		recs, id2 := l.GetRecords(id)
		So(id2, ShouldNotEqual, id)
		So(len(recs), ShouldEqual, 3)
		So(recs[0].Text, ShouldEqual, "line 2")
		So(recs[2].Text, ShouldEqual, "line 4")

		recs, id3 := l.GetRecords(id2)
		So(recs, ShouldBeNil)
		So(id3, ShouldEqual, id2)

		Convey("Watch wakes on a write", func() {
			done := make(chan int64, 1)
			go func() { done <- l.Watch(id2, 3*time.Second) }()
			time.Sleep(10 * time.Millisecond)
			fmt.Fprintln(l, "more")
			So(<-done, ShouldNotEqual, id2)
		})

		Convey("Watch expires", func() {
			So(l.Watch(id2, 10*time.Millisecond), ShouldEqual, id2)
		})

		Convey("Clear drops everything", func() {
			l.Clear()
			recs, _ := l.GetRecords(0)
			So(recs, ShouldBeEmpty)
		})
	})
}

func TestMultiLogger(t *testing.T) {
	Convey("A multi logger fans out", t, func() {
		a, b := NewLog(0), NewLog(0)
		m := NewMultiLogger("[x] ")
		m.AddWriter(a, 0)
		lb := log.New(b, "", 0)
		m.AddLogger(lb)
		m.AddLogger(lb)

		m.Printf("hello %d", 1)
		ra, _ := a.GetRecords(0)
		rb, _ := b.GetRecords(0)
		So(len(ra), ShouldEqual, 1)
		So(len(rb), ShouldEqual, 1)
		So(ra[0].Text, ShouldEqual, "[x] hello 1")

		m.DelLogger(lb)
		m.Logger().Print("again")
		ra, _ = a.GetRecords(0)
		rb, _ = b.GetRecords(0)
		So(len(ra), ShouldEqual, 2)
		So(len(rb), ShouldEqual, 1)
	})
}
