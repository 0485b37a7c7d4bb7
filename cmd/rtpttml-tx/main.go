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

// Command rtpttml-tx reads a TTML document (from a file or stdin) and
// transmits it over RTP/UDP, optionally repeating on an interval,
// mirroring the original rtpTTML project's exampleTX.py.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bbc/rtpttml/internal/config"
	"github.com/bbc/rtpttml/internal/rtplog"
	"github.com/bbc/rtpttml/transmitter"
)

var (
	cfgFile     string
	address     string
	port        uint16
	maxFragSize int
	payloadType uint8
	encodingStr string
	bom         bool
	repeat      int
	intervalS   float64
	cooperative bool
	logLevel    string
	logFile     string
	inputPath   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rtpttml-tx: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rtpttml-tx [file]",
		Short: "Transmit a TTML document over RTP/UDP",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTransmit,
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file path (optional)")
	flags.StringVar(&address, "address", "", "destination address")
	flags.Uint16VarP(&port, "port", "p", 0, "destination UDP port")
	flags.IntVar(&maxFragSize, "max-fragment-size", 0, "max wire-encoded fragment size in bytes")
	flags.Uint8Var(&payloadType, "payload-type", 0, "RTP payload type")
	flags.StringVar(&encodingStr, "encoding", "", "payload encoding: utf8, utf16, utf16le, utf16be")
	flags.BoolVar(&bom, "bom", false, "prefix the first fragment of each document with a byte-order mark")
	flags.IntVar(&repeat, "repeat", 0, "number of times to send the document (0 selects the config default)")
	flags.Float64Var(&intervalS, "interval", 0, "seconds to wait between repeated sends")
	flags.BoolVar(&cooperative, "cooperative", false, "use the cooperative (channel-handoff) connection instead of blocking sends")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&logFile, "log-file", "", "rotate logs to this file instead of stderr")

	return cmd
}

func runTransmit(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		inputPath = args[0]
	}

	v, err := config.New("RTPTTML_TX", cfgFile)
	if err != nil {
		return err
	}
	bindTransmitFlags(v, cmd)

	cfg, err := config.LoadTransmit(v)
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

	doc, err := readDoc(inputPath)
	if err != nil {
		return err
	}

	connCfg := transmitter.Config{
		Address:         cfg.Address,
		Port:            cfg.Port,
		MaxFragmentSize: cfg.MaxFragmentSize,
		PayloadType:     cfg.PayloadType,
		Encoding:        enc,
		BOM:             cfg.BOM,
		Log:             log,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	interval := time.Duration(cfg.IntervalSecs * float64(time.Second))

	withConn := transmitter.WithConnection
	if cooperative {
		withConn = transmitter.WithCooperativeConnection
	}

	return withConn(connCfg, func(conn transmitter.Connection) error {
		for i := 0; i < cfg.Repeat; i++ {
			if ctx.Err() != nil {
				break
			}

			if err := conn.SendDoc(ctx, doc, time.Now()); err != nil {
				return err
			}
			log.Infow("sent document", "iteration", i, "nextSeqNum", conn.NextSeqNum())

			if i < cfg.Repeat-1 {
				select {
				case <-time.After(interval):
				case <-ctx.Done():
				}
			}
		}

		return nil
	})
}

func readDoc(path string) (string, error) {
	if path == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("rtpttml-tx: read stdin: %w", err)
		}

		return string(b), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("rtpttml-tx: read %s: %w", path, err)
	}

	return string(b), nil
}

func bindTransmitFlags(v *viper.Viper, cmd *cobra.Command) {
	for key, flag := range map[string]string{
		"address":           "address",
		"port":              "port",
		"max_fragment_size": "max-fragment-size",
		"payload_type":      "payload-type",
		"encoding":          "encoding",
		"bom":               "bom",
		"repeat":            "repeat",
		"interval_secs":     "interval",
		"log.level":         "log-level",
		"log.file_path":     "log-file",
	} {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}
