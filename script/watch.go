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
	"github.com/gdamore/warden"
	lua "github.com/yuin/gopher-lua"
)

const watchType = "warden.watch"

func registerWatchType(L *lua.LState) {
	mt := L.NewTypeMetatable(watchType)
	L.SetField(mt, "__index", L.NewFunction(watchIndex))
	L.SetField(mt, "__newindex", L.NewFunction(watchNewIndex))
}

func newWatchValue(L *lua.LState, c *warden.WatchConfig) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = c
	L.SetMetatable(ud, L.GetTypeMetatable(watchType))
	return ud
}

func checkWatch(L *lua.LState) *warden.WatchConfig {
	ud := L.CheckUserData(1)
	if c, ok := ud.Value.(*warden.WatchConfig); ok {
		return c
	}
	L.ArgError(1, "watch expected")
	return nil
}

var watchMethods = map[string]lua.LGFunction{
	"on":         watchOn,
	"start_if":   triggerMethod(warden.TriggerStart),
	"restart_if": triggerMethod(warden.TriggerRestart),
	"stop_if":    triggerMethod(warden.TriggerStop),
	"up_if":      triggerMethod(warden.TriggerUp),
}

func seconds(d interface{ Seconds() float64 }) lua.LValue {
	return lua.LNumber(d.Seconds())
}

func str(s string) lua.LValue {
	if s == "" {
		return lua.LNil
	}
	return lua.LString(s)
}

func watchIndex(L *lua.LState) int {
	c := checkWatch(L)
	key := L.CheckString(2)
	if m, ok := watchMethods[key]; ok {
		L.Push(L.NewFunction(m))
		return 1
	}
	var v lua.LValue = lua.LNil
	switch key {
	case "name":
		v = str(c.Name)
	case "group":
		v = str(c.Group)
	case "start":
		v = str(c.Start)
	case "stop":
		v = str(c.Stop)
	case "restart":
		v = str(c.Restart)
	case "dir":
		v = str(c.Dir)
	case "pid_file":
		v = str(c.PidFile)
	case "autostart":
		v = lua.LBool(c.Autostart)
	case "lifecycle":
		v = lua.LBool(c.Lifecycle)
	case "interval":
		v = seconds(c.Interval)
	case "stop_timeout":
		v = seconds(c.StopTimeout)
	case "restart_window":
		v = seconds(c.RestartWindow)
	case "max_restarts":
		v = lua.LNumber(c.MaxRestarts)
	case "env":
		t := L.NewTable()
		for _, e := range c.Env {
			t.Append(lua.LString(e))
		}
		v = t
	}
	L.Push(v)
	return 1
}

func optString(L *lua.LState, key string, v lua.LValue) string {
	switch x := v.(type) {
	case lua.LString:
		return string(x)
	case lua.LNumber:
		return x.String()
	}
	if v == lua.LNil {
		return ""
	}
	L.RaiseError("%s must be a string, got %s", key, v.Type())
	return ""
}

func watchNewIndex(L *lua.LState) int {
	c := checkWatch(L)
	key := L.CheckString(2)
	v := L.Get(3)
	switch key {
	case "name":
		c.Name = optString(L, key, v)
	case "group":
		c.Group = optString(L, key, v)
	case "start":
		c.Start = optString(L, key, v)
	case "stop":
		c.Stop = optString(L, key, v)
	case "restart":
		c.Restart = optString(L, key, v)
	case "dir":
		c.Dir = optString(L, key, v)
	case "pid_file":
		c.PidFile = optString(L, key, v)
	case "autostart":
		c.Autostart = lua.LVAsBool(v)
	case "lifecycle":
		c.Lifecycle = lua.LVAsBool(v)
	case "interval":
		c.Interval = toDuration(L, key, v)
	case "stop_timeout":
		c.StopTimeout = toDuration(L, key, v)
	case "restart_window":
		c.RestartWindow = toDuration(L, key, v)
	case "max_restarts":
		n, ok := v.(lua.LNumber)
		if !ok {
			L.RaiseError("max_restarts must be a number, got %s", v.Type())
		}
		c.MaxRestarts = int(n)
	case "env":
		c.Env = toEnv(L, v)
	default:
		L.RaiseError("watch has no attribute %q", key)
	}
	return 0
}

// attach builds the condition named by the argument at index, with the
// optional parameter table after it.
func attach(L *lua.LState, c *warden.WatchConfig, t warden.Trigger, index int) {
	kind := L.CheckString(index)
	params := toParams(L, L.OptTable(index+1, nil))
	cond, err := warden.NewCondition(kind, params)
	if err != nil {
		L.RaiseError("%s: %v", t, err)
	}
	c.On(t, cond)
}

func triggerMethod(t warden.Trigger) lua.LGFunction {
	return func(L *lua.LState) int {
		attach(L, checkWatch(L), t, 2)
		return 0
	}
}

func watchOn(L *lua.LState) int {
	c := checkWatch(L)
	t, err := warden.ParseTrigger(L.CheckString(2))
	if err != nil {
		L.ArgError(2, err.Error())
	}
	attach(L, c, t, 3)
	return 0
}
