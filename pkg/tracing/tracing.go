// Package tracing 对接 OpenTelemetry：tracer 初始化与 Agent/投递/拉取 span（不依赖 internal）
package tracing

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EndSpan 按 err 设置状态后结束 span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
