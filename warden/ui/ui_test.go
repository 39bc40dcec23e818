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

package ui

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gdamore/warden"
	"github.com/gdamore/warden/rest"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMarkup(t *testing.T) {
	Convey("Key words are highlighted", t, func() {
		So(markup([]string{"[Q] Quit", "[H] Help"}),
			ShouldEqual, "[%AQ%N] Quit [%AH%N] Help")
		So(markup([]string{"100% done"}), ShouldEqual, "100%% done")
		So(markup(nil), ShouldEqual, "")
	})
}

func TestPrompt(t *testing.T) {
	Convey("Prompts are padded to a fixed width", t, func() {
		So(prompt([]rune("bob"), false), ShouldEqual, "bob             ")
		So(prompt([]rune("bob"), true), ShouldEqual, "bob_            ")
	})
	Convey("Long prompts show their tail", t, func() {
		p := prompt([]rune("abcdefghijklmnopqrstuvwxyz"), false)
		So(len(p), ShouldEqual, maxField)
		So(p, ShouldEqual, "<lmnopqrstuvwxyz")
	})
}

func TestActionKeys(t *testing.T) {
	Convey("Actions follow the watch state", t, func() {
		So(actionKeys([]string{"[Q] Quit"}, nil), ShouldResemble, []string{"[Q] Quit"})
		idle := &warden.WatchInfo{Name: "a", State: "unmonitored"}
		So(actionKeys(nil, idle), ShouldContain, "[M] Monitor")
		up := &warden.WatchInfo{Name: "a", State: "up"}
		So(actionKeys(nil, up), ShouldContain, "[R] Restart")
		So(actionKeys(nil, up), ShouldNotContain, "[M] Monitor")
	})
}

func TestUnauthorized(t *testing.T) {
	Convey("Only 401 replies ask for credentials", t, func() {
		So(unauthorized(&rest.Error{Code: http.StatusUnauthorized}), ShouldBeTrue)
		So(unauthorized(&rest.Error{Code: http.StatusNotFound}), ShouldBeFalse)
		So(unauthorized(errors.New("refused")), ShouldBeFalse)
	})
}
