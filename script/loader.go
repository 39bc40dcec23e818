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

package script

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/warden"
	lua "github.com/yuin/gopher-lua"
)

// DefaultTimeout bounds how long a single script may run.
const DefaultTimeout = 10 * time.Second

// Loader evaluates Lua declaration scripts against a Registry.  Scripts
// see two globals: watch(fn), which declares a watch by calling fn with
// a configuration object, and pid_file_directory(path).
type Loader struct {
	Timeout time.Duration
}

// NewLoader returns a Loader with the default timeout.
func NewLoader() *Loader {
	return &Loader{Timeout: DefaultTimeout}
}

func (l *Loader) newState(r *warden.Registry) (*lua.LState, context.CancelFunc) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		IncludeGoStackTrace: false,
	})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	d := l.Timeout
	if d <= 0 {
		d = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	L.SetContext(ctx)

	registerWatchType(L)
	L.SetGlobal("watch", L.NewFunction(func(L *lua.LState) int {
		return declare(L, r)
	}))
	L.SetGlobal("pid_file_directory", L.NewFunction(func(L *lua.LState) int {
		if L.GetTop() == 0 {
			L.Push(lua.LString(r.PidDir()))
			return 1
		}
		if err := r.SetPidDir(L.CheckString(1)); err != nil {
			L.RaiseError("pid_file_directory: %v", err)
		}
		return 0
	}))
	return L, cancel
}

// LoadFile implements warden.Loader.
func (l *Loader) LoadFile(r *warden.Registry, path string) error {
	L, cancel := l.newState(r)
	defer cancel()
	defer L.Close()
	return L.DoFile(path)
}

// LoadString implements warden.Loader.
func (l *Loader) LoadString(r *warden.Registry, src string) error {
	L, cancel := l.newState(r)
	defer cancel()
	defer L.Close()
	return L.DoString(src)
}

// declare runs the function passed to watch() inside Registry.Watch.
// If the function raises, nothing is declared.  Any error aborts the
// load, which removes whatever it declared.
func declare(L *lua.LState, r *warden.Registry) int {
	fn := L.CheckFunction(1)
	_, err := r.Watch(func(c *warden.WatchConfig) error {
		ud := newWatchValue(L, c)
		return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, ud)
	})
	if err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// toGo converts a Lua value into the shapes warden.Params understands.
// Sequences become []interface{}, other tables map[string]interface{}.
func toGo(v lua.LValue) interface{} {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		f := float64(x)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(x)
	case *lua.LTable:
		if n := x.Len(); n > 0 {
			count := 0
			x.ForEach(func(_, _ lua.LValue) { count++ })
			if count == n {
				arr := make([]interface{}, n)
				for i := 1; i <= n; i++ {
					arr[i-1] = toGo(x.RawGetInt(i))
				}
				return arr
			}
		}
		m := make(map[string]interface{})
		x.ForEach(func(k, v lua.LValue) {
			m[k.String()] = toGo(v)
		})
		return m
	}
	return nil
}

func toParams(L *lua.LState, t *lua.LTable) warden.Params {
	p := warden.Params{}
	if t == nil {
		return p
	}
	t.ForEach(func(k, v lua.LValue) {
		ks, ok := k.(lua.LString)
		if !ok {
			L.RaiseError("condition parameters must have string keys, got %s", k.Type())
		}
		p[string(ks)] = toGo(v)
	})
	return p
}

// toDuration accepts seconds or a Go duration string.
func toDuration(L *lua.LState, field string, v lua.LValue) time.Duration {
	switch x := v.(type) {
	case lua.LNumber:
		return time.Duration(float64(x) * float64(time.Second))
	case lua.LString:
		d, err := time.ParseDuration(string(x))
		if err != nil {
			L.RaiseError("%s: %v", field, err)
		}
		return d
	}
	L.RaiseError("%s must be seconds or a duration, got %s", field, v.Type())
	return 0
}

// toEnv accepts a list of "KEY=value" strings or a table of KEY = value.
func toEnv(L *lua.LState, v lua.LValue) []string {
	t, ok := v.(*lua.LTable)
	if !ok {
		if v == lua.LNil {
			return nil
		}
		L.RaiseError("env must be a table, got %s", v.Type())
	}
	var env []string
	switch g := toGo(t).(type) {
	case []interface{}:
		for _, e := range g {
			s, ok := e.(string)
			if !ok {
				L.RaiseError("env entries must be strings")
			}
			env = append(env, s)
		}
	case map[string]interface{}:
		for k, e := range g {
			env = append(env, fmt.Sprintf("%s=%v", k, e))
		}
		sort.Strings(env)
	}
	return env
}
