package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 定义 Prometheus 监控指标
var (
	// VialsCreatedTotal 计数器：已完成合成的样品瓶总数
	VialsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workcell_vials_created_total",
		Help: "The total number of vials synthesized",
	})

	// ReadingsTakenTotal 计数器：已完成的光谱采样总数
	// 按插槽分类，便于观察各插槽的采样进度
	ReadingsTakenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workcell_readings_taken_total",
		Help: "The total number of spectrum readings captured",
	}, []string{"slot"})

	// ChannelRefillsTotal 计数器：各通道的补液次数
	// 补液频率异常升高说明配方体积与通道容量不匹配
	ChannelRefillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workcell_channel_refills_total",
		Help: "The total number of channel refills",
	}, []string{"tool", "axis"})

	// DispensedMilliliters 计数器：各工具累计分液体积
	DispensedMilliliters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workcell_dispensed_milliliters_total",
		Help: "Cumulative dispensed volume in milliliters",
	}, []string{"tool"})

	// DueWaitSeconds 直方图：采样前到期轮询等待时长的分布
	// 用于分析调度让步窗口是否设置合理
	DueWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "workcell_due_wait_seconds",
		Help:    "Time spent polling for a reading to come due",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
