package util

import (
	"context"
	"time"
)

// contextKey 是一个私有类型，用于避免 context key 的冲突
type contextKey string

const runIDKey contextKey = "runID"

// NewRunID 根据启动时刻生成本次实验的运行 ID
// 运行 ID 同时作为光谱数据目录名与日志关联字段
func NewRunID(now time.Time) string {
	return now.Format("20060102_150405")
}

// ContextWithRunID 将运行 ID 注入到 Context 中，并返回一个新的 Context
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext 从 Context 中提取运行 ID
func RunIDFromContext(ctx context.Context) (string, bool) {
	runID, ok := ctx.Value(runIDKey).(string)
	return runID, ok
}
