// Package config loads the sweep configuration: a YAML file, overridden by
// RFQMAP_* environment variables, then clamped to safe defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Inputs and outputs.
	CellsFile    string `yaml:"cells_file"`    // CSV cell-length table
	Output       string `yaml:"output"`        // final field-map table
	CheckpointDB string `yaml:"checkpoint_db"` // SQLite checkpoint store

	// Geometry [m].
	CADOffset      float64 `yaml:"cad_offset"`      // z of the structure start in CAD coordinates
	R0             float64 `yaml:"r0"`              // mean aperture radius
	Rho            float64 `yaml:"rho"`             // vane tip transverse radius
	VerticalHeight float64 `yaml:"vertical_height"` // nominal transverse box height
	InnerBoxWidth  float64 `yaml:"inner_box_width"` // transverse extent of the inner beam box

	// Sweep shape.
	ExtraCells      int  `yaml:"extra_cells"`      // neighbor cells included per selection side
	FourQuadrant    bool `yaml:"four_quadrant"`    // full-symmetry model
	SeparateCells   bool `yaml:"separate_cells"`   // troubleshooting: skip cells whose solve fails
	RestartInterval int  `yaml:"restart_interval"` // cells between engine restarts, 0 = symmetry default
	ReloadSnapshot  bool `yaml:"reload_snapshot"`  // carry the engine model across restarts via snapshot

	// Meshing.
	InnerDivisions int     `yaml:"inner_divisions"`  // swept transverse divisions in the inner beam box
	OuterMeshStep  float64 `yaml:"outer_mesh_step"`  // free tetrahedral target step, outer beam box [m]
	AirBagMeshStep float64 `yaml:"airbag_mesh_step"` // free tetrahedral target step, air bag [m]
	TipSurfaceStep float64 `yaml:"tip_surface_step"` // surface triangulation step on vane tips [m]

	// Field sampling.
	Sampling SamplingConfig `yaml:"sampling"`

	// Engine connection.
	Engine EngineConfig `yaml:"engine"`

	// Status API listen address; empty disables it.
	StatusAddr string `yaml:"status_addr"`

	SnapshotDir string `yaml:"snapshot_dir"` // engine snapshots and crash diagnostics
}

// SamplingConfig shapes the per-cell interpolation grid.
type SamplingConfig struct {
	Extent        float64 `yaml:"extent"`          // transverse half-extent of the grid [m]
	NX            int     `yaml:"nx"`              // transverse points, x
	NY            int     `yaml:"ny"`              // transverse points, y
	StepsPerMeter int     `yaml:"steps_per_meter"` // longitudinal sample density
}

// EngineConfig describes how to reach (and optionally spawn) the engine.
type EngineConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Command        string        `yaml:"command"` // empty: externally managed engine
	Args           []string      `yaml:"args"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Load reads the YAML file at path, applies environment overrides, and
// clamps defaults. A missing file is not an error: overrides and defaults
// alone can describe a sweep.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.CellsFile = envOr("RFQMAP_CELLS_FILE", cfg.CellsFile)
	cfg.Output = envOr("RFQMAP_OUTPUT", cfg.Output)
	cfg.CheckpointDB = envOr("RFQMAP_CHECKPOINT_DB", cfg.CheckpointDB)
	cfg.StatusAddr = envOr("RFQMAP_STATUS_ADDR", cfg.StatusAddr)
	cfg.SnapshotDir = envOr("RFQMAP_SNAPSHOT_DIR", cfg.SnapshotDir)
	cfg.FourQuadrant = envBool("RFQMAP_FOUR_QUADRANT", cfg.FourQuadrant)
	cfg.SeparateCells = envBool("RFQMAP_SEPARATE_CELLS", cfg.SeparateCells)
	cfg.RestartInterval = envInt("RFQMAP_RESTART_INTERVAL", cfg.RestartInterval)
	cfg.Engine.Host = envOr("RFQMAP_ENGINE_HOST", cfg.Engine.Host)
	cfg.Engine.Port = envInt("RFQMAP_ENGINE_PORT", cfg.Engine.Port)
	cfg.Engine.Command = envOr("RFQMAP_ENGINE_COMMAND", cfg.Engine.Command)
	cfg.Engine.ConnectTimeout = envDuration("RFQMAP_ENGINE_CONNECT_TIMEOUT", cfg.Engine.ConnectTimeout)

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Output == "" {
		cfg.Output = "fieldmap.dat"
	}
	if cfg.CheckpointDB == "" {
		cfg.CheckpointDB = "sweep-checkpoint.db"
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = "snapshots"
	}
	if cfg.Engine.Host == "" {
		cfg.Engine.Host = "localhost"
	}
	if cfg.Engine.Port <= 0 {
		cfg.Engine.Port = 2036
	}
	if cfg.Engine.ConnectTimeout <= 0 {
		cfg.Engine.ConnectTimeout = 2 * time.Minute
	}
	if cfg.ExtraCells <= 0 {
		cfg.ExtraCells = 1
	}
	if cfg.InnerDivisions <= 0 {
		cfg.InnerDivisions = 8
	}
	if cfg.OuterMeshStep <= 0 {
		cfg.OuterMeshStep = 0.001
	}
	if cfg.AirBagMeshStep <= 0 {
		cfg.AirBagMeshStep = 0.004
	}
	if cfg.TipSurfaceStep <= 0 {
		cfg.TipSurfaceStep = 0.0002
	}
	if cfg.Sampling.NX <= 0 {
		cfg.Sampling.NX = 21
	}
	if cfg.Sampling.NY <= 0 {
		cfg.Sampling.NY = 21
	}
	if cfg.Sampling.StepsPerMeter <= 0 {
		cfg.Sampling.StepsPerMeter = 2000
	}
	if cfg.RestartInterval <= 0 {
		// Four-quadrant meshes are roughly four times heavier, so the engine
		// accumulates memory faster and needs cycling more often.
		if cfg.FourQuadrant {
			cfg.RestartInterval = 10
		} else {
			cfg.RestartInterval = 25
		}
	}
}

func (c Config) Validate() error {
	if c.CellsFile == "" {
		return fmt.Errorf("cells_file is required")
	}
	if c.R0 <= 0 {
		return fmt.Errorf("r0 must be positive")
	}
	if c.Rho <= 0 {
		return fmt.Errorf("rho must be positive")
	}
	if c.VerticalHeight <= 0 {
		return fmt.Errorf("vertical_height must be positive")
	}
	if c.InnerBoxWidth <= 0 {
		return fmt.Errorf("inner_box_width must be positive")
	}
	if c.Sampling.Extent <= 0 {
		return fmt.Errorf("sampling.extent must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
