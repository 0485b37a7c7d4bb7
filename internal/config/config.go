// Copyright 2020 British Broadcasting Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads layered configuration (flags > env > file >
// defaults) for the rtpttml-rx and rtpttml-tx command-line drivers,
// using viper the way this repository's teacher loads its own daemon
// config.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/bbc/rtpttml/ttml"
)

// LogConfig configures the shared structured logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ReceiveConfig is the root configuration for rtpttml-rx.
type ReceiveConfig struct {
	Port        uint16    `mapstructure:"port"`
	RecvBufSize int       `mapstructure:"recv_buf_size"`
	TimeoutSecs float64   `mapstructure:"timeout_secs"`
	BufferDepth int       `mapstructure:"buffer_depth"`
	Encoding    string    `mapstructure:"encoding"`
	BOM         bool      `mapstructure:"bom"`
	OutDir      string    `mapstructure:"out_dir"`
	Log         LogConfig `mapstructure:"log"`
}

// TransmitConfig is the root configuration for rtpttml-tx.
type TransmitConfig struct {
	Address         string    `mapstructure:"address"`
	Port            uint16    `mapstructure:"port"`
	MaxFragmentSize int       `mapstructure:"max_fragment_size"`
	PayloadType     uint8     `mapstructure:"payload_type"`
	Encoding        string    `mapstructure:"encoding"`
	BOM             bool      `mapstructure:"bom"`
	Repeat          int       `mapstructure:"repeat"`
	IntervalSecs    float64   `mapstructure:"interval_secs"`
	Log             LogConfig `mapstructure:"log"`
}

// New returns a *viper.Viper prepared with rtpttml's env prefix and
// key replacer, reading file at path if non-empty. Flags are bound by
// the caller via BindPFlags before Unmarshal is called.
func New(envPrefix, file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	return v, nil
}

// LoadReceive sets rtpttml-rx defaults on v, then unmarshals into a
// ReceiveConfig.
func LoadReceive(v *viper.Viper) (*ReceiveConfig, error) {
	v.SetDefault("port", 5000)
	v.SetDefault("recv_buf_size", 65536)
	v.SetDefault("timeout_secs", 30)
	v.SetDefault("buffer_depth", 5)
	v.SetDefault("encoding", "utf8")
	v.SetDefault("bom", false)
	v.SetDefault("log.level", "info")

	var cfg ReceiveConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal receive config: %w", err)
	}

	return &cfg, nil
}

// LoadTransmit sets rtpttml-tx defaults on v, then unmarshals into a
// TransmitConfig.
func LoadTransmit(v *viper.Viper) (*TransmitConfig, error) {
	v.SetDefault("address", "127.0.0.1")
	v.SetDefault("port", 5000)
	v.SetDefault("max_fragment_size", 1200)
	v.SetDefault("payload_type", 96)
	v.SetDefault("encoding", "utf8")
	v.SetDefault("bom", false)
	v.SetDefault("repeat", 1)
	v.SetDefault("interval_secs", 1.0)
	v.SetDefault("log.level", "info")

	var cfg TransmitConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal transmit config: %w", err)
	}

	return &cfg, nil
}

// ParseEncoding maps the config string form of an encoding to a
// ttml.Encoding, kept here (rather than in package ttml) so ttml
// stays free of any knowledge of config string spellings.
func ParseEncoding(s string) (ttml.Encoding, error) {
	switch strings.ToLower(s) {
	case "utf8", "utf-8":
		return ttml.UTF8, nil
	case "utf16", "utf-16":
		return ttml.UTF16, nil
	case "utf16le", "utf-16le":
		return ttml.UTF16LE, nil
	case "utf16be", "utf-16be":
		return ttml.UTF16BE, nil
	default:
		return 0, fmt.Errorf("config: unknown encoding %q", s)
	}
}
