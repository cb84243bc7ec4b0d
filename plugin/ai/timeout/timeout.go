// Package timeout defines centralized timeout constants for AI operations.
// Package timeout 定义 AI 操作的集中式超时常量。
package timeout

import "time"

// AI operation timeout constants.
// AI 操作超时常量。
const (
	// EmbeddingTimeout is the timeout for embedding generation.
	// EmbeddingTimeout 是向量生成的超时时间。
	EmbeddingTimeout = 30 * time.Second

	// ClassifyConnectTimeout is the dial timeout for the fallback classifier.
	// ClassifyConnectTimeout 是回退分类服务的连接超时时间。
	ClassifyConnectTimeout = 10 * time.Second

	// ClassifyTimeout is the overall timeout for a fallback classification.
	// ClassifyTimeout 是回退分类的总超时时间。
	ClassifyTimeout = 30 * time.Second

	// HealthProbeTimeout is the timeout for the classifier health probe.
	// HealthProbeTimeout 是分类服务健康探测的超时时间。
	HealthProbeTimeout = 5 * time.Second

	// BackgroundTimeout bounds best-effort background work such as match
	// recording and keyword learning.
	// BackgroundTimeout 限制后台尽力而为任务的执行时间，例如匹配记录与关键词学习。
	BackgroundTimeout = 5 * time.Second

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)
