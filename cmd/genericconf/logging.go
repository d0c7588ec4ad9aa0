// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package genericconf

import (
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"
	"golang.org/x/exp/slog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type FileLoggingConfig struct {
	Enable     bool   `koanf:"enable"`
	File       string `koanf:"file"`
	MaxSize    int    `koanf:"max-size"`
	MaxBackups int    `koanf:"max-backups"`
	MaxAge     int    `koanf:"max-age"`
	Compress   bool   `koanf:"compress"`
}

var DefaultFileLoggingConfig = FileLoggingConfig{
	Enable:     false,
	File:       "stratum-cranker.log",
	MaxSize:    100, // megabytes
	MaxBackups: 20,
	MaxAge:     0,
	Compress:   true,
}

func FileLoggingConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultFileLoggingConfig.Enable, "enable logging to a rotated file")
	f.String(prefix+".file", DefaultFileLoggingConfig.File, "path of the log file")
	f.Int(prefix+".max-size", DefaultFileLoggingConfig.MaxSize, "log file size in MB that triggers rotation")
	f.Int(prefix+".max-backups", DefaultFileLoggingConfig.MaxBackups, "maximum number of rotated files to keep")
	f.Int(prefix+".max-age", DefaultFileLoggingConfig.MaxAge, "maximum days to retain rotated files, 0 to keep all")
	f.Bool(prefix+".compress", DefaultFileLoggingConfig.Compress, "compress rotated files")
}

// InitLog installs the root handler: terminal output, optionally teed
// into a size-rotated file.
func InitLog(logLevel slog.Level, config *FileLoggingConfig) {
	var writer io.Writer = os.Stderr
	if config != nil && config.Enable {
		writer = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	glogger := log.NewGlogHandler(log.NewTerminalHandler(writer, false))
	glogger.Verbosity(logLevel)
	log.SetDefault(log.NewLogger(glogger))
}
