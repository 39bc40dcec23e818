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

// Package settings loads the daemon's own configuration.  Watches are
// declared separately, in scripts named by the Config globs.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultName     = "warden"
	DefaultPidDir   = "/var/run/warden"
	DefaultListen   = "127.0.0.1:17165"
	DefaultMaxConns = 64
	DefaultTick     = time.Second
	DefaultTopic    = "warden/transitions"

	envPrefix = "WARDEN_"
)

var ErrUnknownFormat = errors.New("Unknown settings format")

// Duration accepts a Go duration string or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(f * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

type Auth struct {
	User string `yaml:"user" toml:"user"`
	// PasswordHash is a bcrypt hash.  Authentication is off when empty.
	PasswordHash string `yaml:"password_hash" toml:"password_hash"`
}

type History struct {
	// Path is an SQLite database file.  History is off when empty.
	Path string `yaml:"path" toml:"path"`
	// Keep bounds the rows kept per watch; zero keeps everything.
	Keep int `yaml:"keep" toml:"keep"`
}

type MQTT struct {
	// Broker is a URL such as tcp://localhost:1883.  Publishing is off
	// when empty.
	Broker   string `yaml:"broker" toml:"broker"`
	ClientID string `yaml:"client_id" toml:"client_id"`
	Topic    string `yaml:"topic" toml:"topic"`
	QoS      int    `yaml:"qos" toml:"qos"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// Settings is everything wardend reads at startup.
type Settings struct {
	Name          string   `yaml:"name" toml:"name"`
	PidDir        string   `yaml:"pid_file_directory" toml:"pid_file_directory"`
	LockFile      string   `yaml:"lock_file" toml:"lock_file"` // default: wardend.lock in PidDir
	Listen        string   `yaml:"listen" toml:"listen"`
	MaxConns      int      `yaml:"max_connections" toml:"max_connections"`
	Tick          Duration `yaml:"tick" toml:"tick"`
	ScriptTimeout Duration `yaml:"script_timeout" toml:"script_timeout"`
	Config        []string `yaml:"config" toml:"config"`
	Auth          Auth     `yaml:"auth" toml:"auth"`
	History       History  `yaml:"history" toml:"history"`
	MQTT          MQTT     `yaml:"mqtt" toml:"mqtt"`
}

// Default returns settings holding defaults only.
func Default() *Settings {
	return &Settings{
		Name:          DefaultName,
		PidDir:        DefaultPidDir,
		Listen:        DefaultListen,
		MaxConns:      DefaultMaxConns,
		Tick:          Duration(DefaultTick),
		ScriptTimeout: Duration(10 * time.Second),
		MQTT: MQTT{
			ClientID: "wardend",
			Topic:    DefaultTopic,
			QoS:      1,
		},
	}
}

// Load builds Settings from defaults, then the file at path if path is
// not empty, then WARDEN_* environment variables.  The file format is
// chosen by extension: .yaml, .yml or .toml.
func Load(path string) (*Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decode(path, data, s); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := s.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func decode(path string, data []byte, s *Settings) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case ".toml":
		md, err := toml.Decode(string(data), s)
		if err != nil {
			return err
		}
		if un := md.Undecoded(); len(un) > 0 {
			return fmt.Errorf("unknown setting %s", un[0])
		}
		return nil
	}
	return ErrUnknownFormat
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	str("NAME", &s.Name)
	str("PID_FILE_DIRECTORY", &s.PidDir)
	str("LOCK_FILE", &s.LockFile)
	str("LISTEN", &s.Listen)
	str("AUTH_USER", &s.Auth.User)
	str("AUTH_PASSWORD_HASH", &s.Auth.PasswordHash)
	str("HISTORY_PATH", &s.History.Path)
	str("MQTT_BROKER", &s.MQTT.Broker)
	str("MQTT_TOPIC", &s.MQTT.Topic)
	str("MQTT_USERNAME", &s.MQTT.Username)
	str("MQTT_PASSWORD", &s.MQTT.Password)

	if v, ok := lookup(envPrefix + "CONFIG"); ok {
		s.Config = filepath.SplitList(v)
	}
	if v, ok := lookup(envPrefix + "MAX_CONNECTIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_CONNECTIONS %q: %w", envPrefix, v, err)
		}
		s.MaxConns = n
	}
	if v, ok := lookup(envPrefix + "TICK"); ok {
		if err := s.Tick.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid %sTICK %q: %w", envPrefix, v, err)
		}
	}
	return nil
}

// Validate checks the settings for values the daemon cannot use.
func (s *Settings) Validate() error {
	if s.Name == "" {
		return errors.New("name must not be empty")
	}
	if s.PidDir == "" {
		return errors.New("pid_file_directory must not be empty")
	}
	if s.Tick <= 0 {
		return errors.New("tick must be > 0")
	}
	if s.MaxConns < 0 {
		return errors.New("max_connections must be >= 0")
	}
	if s.Auth.PasswordHash != "" && s.Auth.User == "" {
		return errors.New("auth needs a user with the password hash")
	}
	if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
		return errors.New("mqtt qos must be 0, 1 or 2")
	}
	if s.History.Keep < 0 {
		return errors.New("history keep must be >= 0")
	}
	return nil
}
