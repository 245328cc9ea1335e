// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type EngineOptions struct {
	NumBlocks    int `tag:"numBlocks"`
	BlockSize    int `tag:"blockSize"`
	PstackNrooms int `tag:"pstackNrooms"`
	NumDevices   int `tag:"numDevices"`
}

type BufferOptions struct {
	DestRowCap   int `tag:"destRowCap"`
	DestByteCap  int `tag:"destByteCap"`
	DestExtraCap int `tag:"destExtraCap"`
}

type DebugOptions struct {
	PrintStats bool `tag:"printStats"`
	DebugLog   bool `tag:"debugLog"`
}

type Config struct {
	Engine EngineOptions `tag:"engine"`
	Buffer BufferOptions `tag:"buffer"`
	Debug  DebugOptions  `tag:"debug"`
}

func (cfg *Config) FillDefaults() {
	if cfg.Engine.NumBlocks <= 0 {
		cfg.Engine.NumBlocks = 4
	}
	if cfg.Engine.BlockSize <= 0 {
		cfg.Engine.BlockSize = 64
	}
	if cfg.Engine.PstackNrooms <= 0 {
		cfg.Engine.PstackNrooms = 1024
	}
	if cfg.Engine.NumDevices <= 0 {
		cfg.Engine.NumDevices = 1
	}
	if cfg.Buffer.DestRowCap <= 0 {
		cfg.Buffer.DestRowCap = 8192
	}
	if cfg.Buffer.DestByteCap <= 0 {
		cfg.Buffer.DestByteCap = 1 << 20
	}
	if cfg.Buffer.DestExtraCap <= 0 {
		cfg.Buffer.DestExtraCap = 1 << 18
	}
}

// LoadConfig decodes a toml config file and fills the unset options with
// their defaults.
func LoadConfig(fpath string) (*Config, error) {
	cfg := &Config{}
	_, err := toml.DecodeFile(fpath, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", fpath)
	}
	cfg.FillDefaults()
	return cfg, nil
}
