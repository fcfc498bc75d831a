package app

import (
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/config"
	"github.com/dokzlo13/cubehook/internal/lua"
	"github.com/dokzlo13/cubehook/internal/scripts"
)

// LuaService loads the optional sequence script.
type LuaService struct {
	cfg     *config.Config
	runtime *lua.Runtime
}

// NewLuaService creates the Lua runtime bound to the script registry.
// Relative script paths resolve against the config file's directory.
func NewLuaService(cfg *config.Config, configPath string, registry *scripts.Registry) *LuaService {
	return &LuaService{
		cfg:     cfg,
		runtime: lua.NewRuntime(registry, cfg.Sequences.LightHold.Duration(), filepath.Dir(configPath)),
	}
}

// LoadScript runs the configured script, if any.
func (s *LuaService) LoadScript() error {
	if s.cfg.Sequences.Script == "" {
		log.Debug().Msg("No sequence script configured")
		return nil
	}
	_, err := s.runtime.LoadScript(s.cfg.Sequences.Script)
	return err
}

// Close releases the Lua state.
func (s *LuaService) Close() {
	s.runtime.Close()
}
