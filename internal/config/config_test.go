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

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	yamlv3 "gopkg.in/yaml.v3"
)

func TestLoadMissingFileAppliesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.Mode != "release" {
		t.Errorf("server=%+v; want defaults", cfg.Server)
	}
	if cfg.Engine.Workers != 0 || cfg.Metrics.Addr != "" {
		t.Errorf("engine=%+v metrics=%+v; want zero values", cfg.Engine, cfg.Metrics)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satchange.yaml")
	data := []byte("engine:\n  workers: 3\n  preview: .jpg\nserver:\n  addr: :9000\n  mode: bogus\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SATCHANGE_ENGINE__WORKERS", "6")
	t.Setenv("SATCHANGE_LOG__FILE", "run.log")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.Workers != 6 {
		t.Errorf("workers=%d; want %d", cfg.Engine.Workers, 6)
	}
	if cfg.Engine.Preview != ".jpg" {
		t.Errorf("preview=%q; want %q", cfg.Engine.Preview, ".jpg")
	}
	if cfg.Log.File != "run.log" {
		t.Errorf("log file=%q; want %q", cfg.Log.File, "run.log")
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.Mode != "release" {
		t.Errorf("server=%+v; want :9000 in release mode", cfg.Server)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("engine: [unclosed\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("want error for malformed YAML")
	}
}

func TestDumpRoundTrip(t *testing.T) {
	in := Config{Engine: EngineCfg{Workers: 2, MemoryMB: 512}, Server: ServerCfg{Addr: ":1", Mode: "debug"}}
	var buf bytes.Buffer
	if err := Dump(&buf, in); err != nil {
		t.Fatal(err)
	}
	var out Config
	if err := yamlv3.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("dump round trip=%+v; want %+v", out, in)
	}
}
