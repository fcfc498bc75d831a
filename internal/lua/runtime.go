// Package lua loads the optional user script that defines extra robot sequences.
package lua

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/cubehook/internal/lua/modules"
	"github.com/dokzlo13/cubehook/internal/scripts"
)

// Runtime owns the Lua VM used to evaluate the sequence script.
//
// The script runs once at startup. Sequences it defines are converted to
// plain Go values, so the VM is never touched from dispatch goroutines.
type Runtime struct {
	L           *lua.LState
	robotModule *modules.RobotModule
	baseDir     string
}

// NewRuntime creates a runtime that registers scripts into registry.
// baseDir is used to resolve relative script paths (usually the config file's directory).
func NewRuntime(registry *scripts.Registry, defaultHold time.Duration, baseDir string) *Runtime {
	L := lua.NewState()

	r := &Runtime{
		L:           L,
		robotModule: modules.NewRobotModule(registry, defaultHold),
		baseDir:     baseDir,
	}

	r.registerModules()

	return r
}

// registerModules registers all Lua modules
func (r *Runtime) registerModules() {
	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.L.PreloadModule("robot", r.robotModule.Loader)
}

// LoadScript executes the script at path and returns the kinds it defined.
func (r *Runtime) LoadScript(path string) ([]string, error) {
	if !filepath.IsAbs(path) {
		if _, err := os.Stat(path); os.IsNotExist(err) && r.baseDir != "" {
			path = filepath.Join(r.baseDir, path)
		}
	}

	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return nil, fmt.Errorf("failed to execute Lua script: %w", err)
	}

	defined := r.robotModule.Defined()
	log.Info().Strs("sequences", defined).Msg("Lua script loaded successfully")
	return defined, nil
}

// LoadString executes script source directly.
func (r *Runtime) LoadString(source string) ([]string, error) {
	if err := r.L.DoString(source); err != nil {
		return nil, fmt.Errorf("failed to execute Lua script: %w", err)
	}
	return r.robotModule.Defined(), nil
}

// Close closes the Lua state.
func (r *Runtime) Close() {
	r.L.Close()
}
