/**
 * internal/utils/logger.go
 * 异步日志模块（基于 zap）
 *
 * 功能：
 * - 异步日志写入，不阻塞构建流程
 * - 统一日志格式（时间 + 级别 + 消息）
 * - 支持构建结束前刷新缓冲区
 *
 * 用法（其他包）：
 *   utils.LogPrintf("[CATALOG] Loaded %d languages", n)
 */

package utils

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ====================  全局变量 ====================

var (
	// logger zap 日志实例
	logger *zap.Logger

	// sugar zap SugaredLogger（更方便的 API）
	sugar *zap.SugaredLogger

	// loggerOnce 确保只初始化一次
	loggerOnce sync.Once
)

// ====================  初始化 ====================

// initLogger 初始化 zap 日志
func initLogger() {
	loggerOnce.Do(func() {
		// 统一配置：控制台格式，Info 级别
		config := zap.Config{
			Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
			Development:      false,
			Encoding:         "console",
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
			EncoderConfig: zapcore.EncoderConfig{
				TimeKey:        "time",
				LevelKey:       "level",
				MessageKey:     "msg",
				EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
				EncodeLevel:    zapcore.CapitalLevelEncoder,
				EncodeDuration: zapcore.StringDurationEncoder,
			},
		}

		var err error
		logger, err = config.Build(
			zap.AddCallerSkip(1), // 跳过 LogPrintf 调用层
		)
		if err != nil {
			// 降级到标准输出
			fmt.Fprintf(os.Stderr, "[LOGGER] Failed to init zap: %v, falling back to no-op logger\n", err)
			logger = zap.NewNop()
		}

		sugar = logger.Sugar()
	})
}

// getLogger 获取 logger 实例（懒加载）
func getLogger() *zap.SugaredLogger {
	if sugar == nil {
		initLogger()
	}
	return sugar
}

// ====================  公开函数 ====================

// LogPrintf 日志输出（格式化）
// 替代 log.Printf，使用 zap 异步写入
func LogPrintf(format string, args ...interface{}) {
	getLogger().Info(fmt.Sprintf(format, args...))
}

// LogFatalf 日志输出后退出
// 替代 log.Fatalf，构建失败时由顶层驱动调用
func LogFatalf(format string, args ...interface{}) {
	getLogger().Fatal(fmt.Sprintf(format, args...))
}

// SyncLogger 同步日志缓冲区（构建退出前调用）
// 确保所有日志都被写入
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
