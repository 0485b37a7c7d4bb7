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

// Command rtpttml-rx binds a receiver.Receiver to a UDP port and
// prints reassembled TTML documents as they arrive, mirroring the
// original rtpTTML project's exampleRX.py.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bbc/rtpttml/internal/config"
	"github.com/bbc/rtpttml/internal/rtplog"
	"github.com/bbc/rtpttml/receiver"
)

var (
	cfgFile     string
	port        uint16
	recvBufSize int
	timeoutSecs float64
	bufferDepth int
	encodingStr string
	bom         bool
	outDir      string
	logLevel    string
	logFile     string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rtpttml-rx: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rtpttml-rx",
		Short: "Receive TTML documents carried over RTP/UDP",
		RunE:  runReceive,
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file path (optional)")
	flags.Uint16VarP(&port, "port", "p", 0, "UDP port to bind")
	flags.IntVar(&recvBufSize, "recv-buf-size", 0, "max bytes read per datagram")
	flags.Float64Var(&timeoutSecs, "timeout", 0, "read timeout in seconds")
	flags.IntVar(&bufferDepth, "buffer-depth", 0, "reorder buffer depth")
	flags.StringVar(&encodingStr, "encoding", "", "payload encoding: utf8, utf16, utf16le, utf16be")
	flags.BoolVar(&bom, "bom", false, "expect a byte-order mark on each document's first fragment")
	flags.StringVar(&outDir, "out-dir", "", "directory to also write each received document to, as <timestamp>.ttml")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&logFile, "log-file", "", "rotate logs to this file instead of stderr")

	return cmd
}

func runReceive(cmd *cobra.Command, _ []string) error {
	v, err := config.New("RTPTTML_RX", cfgFile)
	if err != nil {
		return err
	}
	bindReceiveFlags(v, cmd)

	cfg, err := config.LoadReceive(v)
	if err != nil {
		return err
	}

	log, err := rtplog.New(rtplog.Options{
		Level:      cfg.Log.Level,
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	enc, err := config.ParseEncoding(cfg.Encoding)
	if err != nil {
		return err
	}

	if cfg.OutDir != "" {
		if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
			return fmt.Errorf("rtpttml-rx: create out-dir: %w", err)
		}
	}

	onDocument := func(doc string, timestamp uint32) {
		fmt.Printf("[%d] %s\n", timestamp, doc)

		if cfg.OutDir == "" {
			return
		}

		path := filepath.Join(cfg.OutDir, fmt.Sprintf("%d.ttml", timestamp))
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			log.Warnw("failed to write document to out-dir", "path", path, "error", err)
		}
	}

	r, err := receiver.Open(receiver.Config{
		Port:        cfg.Port,
		RecvBufSize: cfg.RecvBufSize,
		Timeout:     time.Duration(cfg.TimeoutSecs * float64(time.Second)),
		BufferDepth: cfg.BufferDepth,
		Encoding:    enc,
		BOM:         cfg.BOM,
		Log:         log,
	}, onDocument)
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Infow("listening", "addr", r.LocalAddr())

	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

// bindReceiveFlags binds each CLI flag to its config key; viper only
// prefers a bound flag's value over env/file/defaults once the flag
// has actually been set on the command line.
func bindReceiveFlags(v *viper.Viper, cmd *cobra.Command) {
	for key, flag := range map[string]string{
		"port":          "port",
		"recv_buf_size": "recv-buf-size",
		"timeout_secs":  "timeout",
		"buffer_depth":  "buffer-depth",
		"encoding":      "encoding",
		"bom":           "bom",
		"out_dir":       "out-dir",
		"log.level":     "log-level",
		"log.file_path": "log-file",
	} {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}
