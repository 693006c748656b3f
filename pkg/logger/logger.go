package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var Logger *zerolog.Logger

// ParseLevel 解析日志级别字符串，无法识别时返回 info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Init 初始化 zerolog 日志
// level: 日志级别 ("trace", "debug", "info", "warn", "error", "disabled")
// file: 日志文件路径，为空时不写文件
// verbose: 为 true 时以 debug 级别输出到标准错误
//
// 标准输出保留给结果流，日志永远不会写入 stdout。
// 既没有 verbose 也没有 file 时日志被丢弃，避免与 ERROR: 诊断行混在一起。
func Init(level string, file string, verbose bool) error {
	logLevel := ParseLevel(level)
	if verbose && logLevel > zerolog.DebugLevel {
		logLevel = zerolog.DebugLevel
	}

	var writers []io.Writer

	if verbose {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	if file != "" {
		fileWriter, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        fileWriter,
			NoColor:    true,
			TimeFormat: "2006-01-02 15:04:05",
		})
	}

	var output io.Writer
	switch len(writers) {
	case 0:
		output = io.Discard
		logLevel = zerolog.Disabled
	case 1:
		output = writers[0]
	default:
		output = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(output).Level(logLevel).With().Timestamp().Logger()
	Logger = &logger
	return nil
}

// Get 返回全局 logger 实例
// 如果 logger 未初始化，返回一个默认的 logger（输出到 /dev/null）
func Get() *zerolog.Logger {
	if Logger == nil {
		logger := zerolog.New(io.Discard)
		Logger = &logger
	}
	return Logger
}
