// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads the settings of the satchange tool from an optional
// YAML file, overridden by SATCHANGE_ environment variables.
package config

import (
	"errors"
	"io"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Environment variables with this prefix override file values.
// Nested keys use a double underscore, e.g. SATCHANGE_ENGINE__WORKERS=4
const EnvPrefix = "SATCHANGE_"

type EngineCfg struct {
	Workers  int    `koanf:"workers" yaml:"workers"`     // 0 selects half the logical cores
	MemoryMB int    `koanf:"memory_mb" yaml:"memory_mb"` // 0 detects physical memory
	Preview  string `koanf:"preview" yaml:"preview"`     // ".jpg", ".tif" or empty
}

type LogCfg struct {
	File string `koanf:"file" yaml:"file"`
}

type ServerCfg struct {
	Addr string `koanf:"addr" yaml:"addr"`
	Mode string `koanf:"mode" yaml:"mode"` // gin mode: release, debug or test
}

type MetricsCfg struct {
	Addr string `koanf:"addr" yaml:"addr"` // empty disables the standalone metrics listener
}

type Config struct {
	Engine  EngineCfg  `koanf:"engine" yaml:"engine"`
	Log     LogCfg     `koanf:"log" yaml:"log"`
	Server  ServerCfg  `koanf:"server" yaml:"server"`
	Metrics MetricsCfg `koanf:"metrics" yaml:"metrics"`
}

// Merges the YAML file at path, if present, with the environment and applies defaults.
// A missing file is not an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, "__", envKey), nil); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// Maps SATCHANGE_ENGINE__MEMORY_MB to engine__memory_mb, which the provider splits on "__"
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

func applyDefaults(c *Config) {
	if c.Engine.Workers < 0 {
		c.Engine.Workers = 0
	}
	if c.Engine.MemoryMB < 0 {
		c.Engine.MemoryMB = 0
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	switch c.Server.Mode {
	case "release", "debug", "test":
	default:
		c.Server.Mode = "release"
	}
}

// Writes the effective configuration as YAML
func Dump(w io.Writer, c Config) error {
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
