package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 Agent/管理 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		ScenariosTotal, CallSiteUnresolvedTotal, InstancesUnencodableTotal,
		CaptureDuration, CaptureThrottledTotal,
		InstrumentationTotal, InstrumentationFailTotal, PatchedPoints,
		RefreshTotal,
		IngestTotal, IngestDroppedTotal, IngestQueueDepth,
		RelayTotal, RelayBusy,
	)
}

// ScenariosTotal 生成的场景总数（按来源）
var ScenariosTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runabout_scenarios_total",
		Help: "生成的场景总数",
	},
	[]string{"source"}, // direct | intercept
)

// CallSiteUnresolvedTotal 调用点未能识别的场景数
var CallSiteUnresolvedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "runabout_callsite_unresolved_total",
		Help: "调用点未能识别的场景数",
	},
)

// InstancesUnencodableTotal 以 unencodable 哨兵输出的实例数
var InstancesUnencodableTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "runabout_instances_unencodable_total",
		Help: "以 unencodable 哨兵输出的实例数",
	},
)

// CaptureDuration 单次采集（解析调用点 + 编码）耗时（秒）
var CaptureDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "runabout_capture_duration_seconds",
		Help:    "单次采集耗时（秒）",
		Buckets: []float64{.00005, .0001, .0005, .001, .005, .01, .05, .1},
	},
)

// CaptureThrottledTotal 被限流丢弃的拦截调用数
var CaptureThrottledTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "runabout_capture_throttled_total",
		Help: "被限流丢弃的拦截调用数",
	},
)

// InstrumentationTotal 插桩操作总数（按操作）
var InstrumentationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runabout_instrumentation_total",
		Help: "插桩操作总数",
	},
	[]string{"op"}, // install | uninstall
)

// InstrumentationFailTotal 插桩失败总数（按操作）
var InstrumentationFailTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runabout_instrumentation_fail_total",
		Help: "插桩失败总数",
	},
	[]string{"op"},
)

// PatchedPoints 当前已挂钩的拦截点数
var PatchedPoints = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "runabout_patched_points",
		Help: "当前已挂钩的拦截点数",
	},
)

// RefreshTotal 指令刷新次数（按结果）
var RefreshTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runabout_refresh_total",
		Help: "指令刷新次数",
	},
	[]string{"result"}, // ok | partial | rejected | pull_failed
)

// IngestTotal 场景投递总数（按 sink 与结果）
var IngestTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runabout_ingest_total",
		Help: "场景投递总数",
	},
	[]string{"sink", "status"}, // status: delivered | failed
)

// IngestDroppedTotal 因队列满或已关闭而丢弃的场景数
var IngestDroppedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runabout_ingest_dropped_total",
		Help: "因队列满或已关闭而丢弃的场景数",
	},
	[]string{"reason"}, // full | closed
)

// IngestQueueDepth 投递队列当前长度
var IngestQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "runabout_ingest_queue_depth",
		Help: "投递队列当前长度",
	},
)

// RelayTotal 发件箱转发次数
var RelayTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runabout_relay_total",
		Help: "发件箱转发次数",
	},
	[]string{"status"}, // delivered | requeued | failed
)

// RelayBusy 正在转发的条数
var RelayBusy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "runabout_relay_busy",
		Help: "正在转发的条数",
	},
	[]string{"relay_id"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
