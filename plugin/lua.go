// Package plugin provides filter operators implemented in Lua.
package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/thisisjab/chquery/fault"
	"github.com/thisisjab/chquery/querier"
	"github.com/thisisjab/chquery/schema"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	luajson "layeh.com/gopher-json"
)

type LuaOperatorConfig struct {
	Name       string `yaml:"name"`
	Script     string `yaml:"script"`
	ScriptPath string `yaml:"script_path"`
}

// LuaOperator is a filter operator whose SQL is produced by a Lua script.
// The script MUST define a global function
//
//	function render(field, literal, value)
//
// field is the column name, literal the value serialized as a SQL literal
// (a table of literals when the value is a list) and value the raw value.
// render returns the predicate, or nil and an error message.
// The JSON helper is available through `local json = require("json")`.
type LuaOperator struct {
	name string
	pool *sync.Pool
}

var _ querier.Operator = (*LuaOperator)(nil)

func NewLuaOperator(cfg LuaOperatorConfig) (*LuaOperator, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("lua operator requires a name")
	}

	source, chunkName := cfg.Script, cfg.Name
	if cfg.ScriptPath != "" {
		b, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read script of operator `%s`: %w", cfg.Name, err)
		}
		source, chunkName = string(b), cfg.ScriptPath
	}
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("lua operator `%s` has no script", cfg.Name)
	}

	chunk, err := parse.Parse(strings.NewReader(source), chunkName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse script of operator `%s`: %w", cfg.Name, err)
	}
	proto, err := lua.Compile(chunk, chunkName)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script of operator `%s`: %w", cfg.Name, err)
	}

	// The script is run once here so that runtime errors and a missing render
	// function surface at startup instead of inside the pool.
	L, err := newState(proto)
	if err != nil {
		return nil, fmt.Errorf("failed to load script of operator `%s`: %w", cfg.Name, err)
	}
	if L.GetGlobal("render").Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("script of operator `%s` does not define render", cfg.Name)
	}

	pool := &sync.Pool{
		New: func() any {
			L, err := newState(proto)
			if err != nil {
				panic(err)
			}
			return L
		},
	}
	pool.Put(L)

	return &LuaOperator{name: cfg.Name, pool: pool}, nil
}

func newState(proto *lua.FunctionProto) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load anything by default
	})

	// We skip 'os' and 'io' to prevent system commands/file access
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},  // Allows 'require'
		{lua.BaseLibName, lua.OpenBase},     // Allows 'print', 'pairs', etc.
		{lua.TabLibName, lua.OpenTable},     // Allows 'table.concat', etc.
		{lua.StringLibName, lua.OpenString}, // Allows string manipulation
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	luajson.Preload(L)

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, err
	}
	return L, nil
}

func (o *LuaOperator) Name() string {
	return o.name
}

func (o *LuaOperator) SQL(field schema.Field, name string, value any) (string, error) {
	literal, err := literals(field, name, value)
	if err != nil {
		return "", err
	}

	L := o.pool.Get().(*lua.LState)
	defer o.pool.Put(L)

	err = L.CallByParam(lua.P{
		Fn:      L.GetGlobal("render"),
		NRet:    2,
		Protect: true,
	}, lua.LString(name), toLua(L, literal), toLua(L, value))
	if err != nil {
		return "", fmt.Errorf("lua operator `%s` failed: %w", o.name, err)
	}

	sql, msg := L.Get(-2), L.Get(-1)
	L.Pop(2)

	if msg != lua.LNil {
		return "", fault.Newf(fault.BadInputCode, "operator `%s` rejected `%s`: %s", o.name, name, msg.String())
	}
	if sql.Type() != lua.LTString {
		return "", fmt.Errorf("lua operator `%s` returned %s instead of a string", o.name, sql.Type())
	}
	return sql.String(), nil
}

// literals serializes value through field, item by item for lists.
func literals(field schema.Field, name string, value any) (any, error) {
	one := func(v any) (string, error) {
		coerced, err := field.ToGo(v, time.UTC)
		if err != nil {
			return "", fault.Newf(fault.BadInputCode, "invalid value for field `%s`", name).WithOriginal(err)
		}
		return field.ToDBString(coerced, true), nil
	}

	rv := reflect.ValueOf(value)
	if value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return one(value)
	}

	out := make([]any, rv.Len())
	for i := range rv.Len() {
		s, err := one(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return lua.LNumber(f)
		}
		return lua.LString(x.String())
	case fmt.Stringer:
		return lua.LString(x.String())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.Slice, reflect.Array:
		t := L.NewTable()
		for i := range rv.Len() {
			t.Append(toLua(L, rv.Index(i).Interface()))
		}
		return t
	case reflect.Map:
		t := L.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSetString(fmt.Sprint(iter.Key().Interface()), toLua(L, iter.Value().Interface()))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

// Register adds operators to the querier registry. Like querier.Register it
// must only be called during startup.
func Register(ops ...*LuaOperator) {
	for _, op := range ops {
		querier.Register(op.name, op)
	}
}
