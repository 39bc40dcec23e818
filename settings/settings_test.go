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

package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func writeFile(t *testing.T, name, body string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// setenv sets a variable until the enclosing Convey block finishes.
func setenv(key, val string) {
	os.Setenv(key, val)
	Reset(func() { os.Unsetenv(key) })
}

func TestDefaults(t *testing.T) {
	Convey("Loading without a file gives defaults", t, func() {
		s, err := Load("")
		So(err, ShouldBeNil)
		So(s.Name, ShouldEqual, DefaultName)
		So(s.PidDir, ShouldEqual, DefaultPidDir)
		So(s.Listen, ShouldEqual, DefaultListen)
		So(time.Duration(s.Tick), ShouldEqual, time.Second)
		So(s.LockFile, ShouldEqual, "")
		So(s.MQTT.Topic, ShouldEqual, DefaultTopic)
	})
}

func TestYAML(t *testing.T) {
	Convey("Given a YAML settings file", t, func() {
		path := writeFile(t, "wardend.yaml", `
name: prod
pid_file_directory: /tmp/warden
listen: unix:/tmp/warden.sock
max_connections: 8
tick: 500ms
script_timeout: 3
config:
  - /etc/warden/*.lua
  - /srv/*/warden.lua
auth:
  user: admin
  password_hash: "$2a$10$abcdefghijklmnopqrstuv"
history:
  path: /var/lib/warden/history.db
  keep: 500
mqtt:
  broker: tcp://localhost:1883
  qos: 0
`)
		s, err := Load(path)
		So(err, ShouldBeNil)
		So(s.Name, ShouldEqual, "prod")
		So(s.PidDir, ShouldEqual, "/tmp/warden")
		So(s.Listen, ShouldEqual, "unix:/tmp/warden.sock")
		So(s.MaxConns, ShouldEqual, 8)
		So(time.Duration(s.Tick), ShouldEqual, 500*time.Millisecond)
		So(time.Duration(s.ScriptTimeout), ShouldEqual, 3*time.Second)
		So(s.Config, ShouldResemble, []string{"/etc/warden/*.lua", "/srv/*/warden.lua"})
		So(s.Auth.User, ShouldEqual, "admin")
		So(s.History.Keep, ShouldEqual, 500)
		So(s.MQTT.Broker, ShouldEqual, "tcp://localhost:1883")
		So(s.MQTT.QoS, ShouldEqual, 0)
		So(s.MQTT.ClientID, ShouldEqual, "wardend")

		Convey("Environment variables take precedence", func() {
			setenv("WARDEN_NAME", "env")
			setenv("WARDEN_TICK", "2s")
			setenv("WARDEN_CONFIG", "/a/*.lua"+string(os.PathListSeparator)+"/b/*.lua")
			setenv("WARDEN_MAX_CONNECTIONS", "3")
			s, err := Load(path)
			So(err, ShouldBeNil)
			So(s.Name, ShouldEqual, "env")
			So(time.Duration(s.Tick), ShouldEqual, 2*time.Second)
			So(s.Config, ShouldResemble, []string{"/a/*.lua", "/b/*.lua"})
			So(s.MaxConns, ShouldEqual, 3)
		})

		Convey("Bad environment values are errors", func() {
			setenv("WARDEN_TICK", "soon")
			_, err := Load(path)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Unknown YAML keys are errors", t, func() {
		path := writeFile(t, "wardend.yml", "nmae: typo\n")
		_, err := Load(path)
		So(err, ShouldNotBeNil)
	})

	Convey("An empty YAML file gives defaults", t, func() {
		path := writeFile(t, "wardend.yml", "")
		s, err := Load(path)
		So(err, ShouldBeNil)
		So(s.Name, ShouldEqual, DefaultName)
	})
}

func TestTOML(t *testing.T) {
	Convey("Given a TOML settings file", t, func() {
		path := writeFile(t, "wardend.toml", `
name = "toml"
tick = "250ms"
script_timeout = 5
config = ["/etc/warden/*.lua"]

[history]
path = "/tmp/h.db"

[mqtt]
broker = "tcp://broker:1883"
topic = "ops/warden"
`)
		s, err := Load(path)
		So(err, ShouldBeNil)
		So(s.Name, ShouldEqual, "toml")
		So(time.Duration(s.Tick), ShouldEqual, 250*time.Millisecond)
		So(time.Duration(s.ScriptTimeout), ShouldEqual, 5*time.Second)
		So(s.Config, ShouldResemble, []string{"/etc/warden/*.lua"})
		So(s.History.Path, ShouldEqual, "/tmp/h.db")
		So(s.MQTT.Topic, ShouldEqual, "ops/warden")
	})

	Convey("Unknown TOML keys are errors", t, func() {
		path := writeFile(t, "wardend.toml", "nmae = \"typo\"\n")
		_, err := Load(path)
		So(err, ShouldNotBeNil)
	})
}

func TestValidate(t *testing.T) {
	Convey("Validation rejects unusable values", t, func() {
		s := Default()
		So(s.Validate(), ShouldBeNil)

		s.Tick = 0
		So(s.Validate(), ShouldNotBeNil)

		s = Default()
		s.Auth.PasswordHash = "x"
		So(s.Validate(), ShouldNotBeNil)

		s = Default()
		s.MQTT.QoS = 3
		So(s.Validate(), ShouldNotBeNil)
	})

	Convey("Other extensions are refused", t, func() {
		path := writeFile(t, "wardend.ini", "name=x\n")
		_, err := Load(path)
		So(errors.Is(err, ErrUnknownFormat), ShouldBeTrue)
	})
}
