// Package logger 提供 go-collab 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（COLLAB_LOG_LEVEL, COLLAB_LOG_FORMAT）
//   - 结构化日志
//
// 使用示例:
//
//	package sync
//
//	import "github.com/dep2p/go-collab/internal/util/logger"
//
//	var log = logger.Logger("core/sync")
//
//	func foo() {
//	    log.Info("operation queued", "doc", docID, "queued", n)
//	    log.Error("direct send failed", "err", err, "peer", addr)
//	}
//
// 环境变量配置:
//
//	# 所有子系统 info，core/sync 子系统 debug
//	COLLAB_LOG_LEVEL=core/sync=debug,info
//
//	# 使用 JSON 格式输出
//	COLLAB_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler
)

// Logger 获取指定子系统的 Logger
//
// Logger 会根据 COLLAB_LOG_LEVEL 环境变量配置日志级别。
// 同一子系统多次调用会返回相同的 Logger 实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	level := cfg.LevelForSubsystem(subsystem)

	handler := newHandler(subsystem, level, cfg.Format)
	l := slog.New(handler)

	actual, _ := loggers.LoadOrStore(subsystem, l)
	if h, ok := handler.(*subsystemHandler); ok {
		handlers.Store(subsystem, h)
	}

	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
//
// 允许在运行时调整日志级别，无需重启。
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// SetGlobalLevel 设置所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).SetLevel(level)
		return true
	})
}

// Discard 返回一个丢弃所有日志的 Logger
//
// 主要用于测试，避免日志输出干扰测试结果。
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// With 创建带有预设属性的 Logger
func With(subsystem string, args ...any) *slog.Logger {
	return Logger(subsystem).With(args...)
}

// SetOutput 设置全局日志输出目标
//
// 所有 logger 的输出会自动重定向到新的 writer，
// 包括已创建的 logger。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
