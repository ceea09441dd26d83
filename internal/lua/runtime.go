// Package lua runs the optional user script that may adjust scheduled values.
//
// A script defines a global function
//
//	function adjust(display, code, value, hour) ... end
//
// and returns a replacement number, or nil to keep the scheduled value. The
// "log" module is preloaded.
package lua

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/monitord/internal/lua/modules"
	"github.com/dokzlo13/monitord/internal/scheduler"
)

// AdjustFunc is the global a script defines to take part in scheduling.
const AdjustFunc = "adjust"

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = errors.New("lua runtime closed")

// Runtime owns a single Lua state. gopher-lua states are not goroutine safe,
// every call goes through mu.
type Runtime struct {
	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

// NewRuntime creates a runtime with the standard modules preloaded.
func NewRuntime() *Runtime {
	L := lua.NewState()
	L.PreloadModule("log", modules.NewLogModule().Loader)
	return &Runtime{L: L}
}

// LoadScript executes a script file. Relative paths that do not exist are
// resolved against baseDir.
func (r *Runtime) LoadScript(path, baseDir string) error {
	if !filepath.IsAbs(path) && baseDir != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = filepath.Join(baseDir, path)
		}
	}

	log.Info().Str("path", path).Msg("Loading Lua script")

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRuntimeClosed
	}
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}
	if _, ok := r.L.GetGlobal(AdjustFunc).(*lua.LFunction); !ok {
		log.Warn().Str("path", path).Msg("Lua script defines no adjust function, values pass through")
	}
	return nil
}

// LoadString executes script source, used for inline scripts and tests.
func (r *Runtime) LoadString(src string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRuntimeClosed
	}
	if err := r.L.DoString(src); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}
	return nil
}

// Adjust calls the script's adjust function. Without one, raw is returned.
func (r *Runtime) Adjust(cmd scheduler.Command, raw, hour float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return raw, ErrRuntimeClosed
	}

	fn, ok := r.L.GetGlobal(AdjustFunc).(*lua.LFunction)
	if !ok {
		return raw, nil
	}

	info := modules.MapToLuaTable(r.L, map[string]any{
		"number_id": cmd.Display.NumberID,
		"name":      cmd.Display.Name,
		"serial":    cmd.Display.SerialNumber,
		"short_id":  cmd.Display.ShortID,
		"long_id":   cmd.Display.LongID(),
	})

	err := r.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true},
		info, lua.LString(cmd.Code), lua.LNumber(raw), lua.LNumber(hour))
	if err != nil {
		return raw, fmt.Errorf("lua adjust: %w", err)
	}

	ret := r.L.Get(-1)
	r.L.Pop(1)

	switch v := ret.(type) {
	case lua.LNumber:
		return float64(v), nil
	case *lua.LNilType:
		return raw, nil
	default:
		return raw, fmt.Errorf("lua adjust returned %s, want number or nil", ret.Type())
	}
}

// Close releases the Lua state.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.L.Close()
}
