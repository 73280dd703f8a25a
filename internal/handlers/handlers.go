package handlers

import (
	"log/slog"

	"spectral-workcell/internal/event"
	"spectral-workcell/internal/web"
)

// RegisterEventHandlers 将所有事件处理器注册到事件总线
// 这是事件驱动架构的核心，将不同的业务关注点（UI、日志）解耦；
// 事件携带发布时刻的数据快照, 处理器不回读台账
func RegisterEventHandlers(bus *event.Bus, st *web.StateTracker, logger *slog.Logger) {
	// --- Web UI 处理器 (Web UI Handler) ---
	// 订阅瓶子创建事件，登记 UI 条目
	bus.Subscribe(event.VialCreated, func(e event.Event) {
		st.AddVial(e.Vial, e.Volume)
		st.UpdateVial(e.Vial, e.Volume, e.Readings, e.DueAt, "SCHEDULED")
	})
	// 订阅采样事件，刷新瓶子的进度与下次到期时刻
	bus.Subscribe(event.ReadingTaken, func(e event.Event) {
		status := "SCHEDULED"
		if e.DueAt == nil {
			status = "DONE"
		}
		st.UpdateVial(e.Vial, e.Volume, e.Readings, e.DueAt, status)
	})
	// 订阅跳过事件
	bus.Subscribe(event.VialSkipped, func(e event.Event) {
		st.AddVial(e.Vial, 0)
		st.UpdateVial(e.Vial, 0, 0, nil, "SKIPPED")
	})
	// 订阅相位变化事件
	bus.Subscribe(event.PhaseChanged, func(e event.Event) {
		st.SetPhase(e.Phase)
	})

	// --- 日志处理器 (Logging Handler) ---
	// 订阅关键业务事件，记录审计日志
	bus.Subscribe(event.BatchStarted, func(e event.Event) {
		logger.Info("批次启动", "run_id", e.RunID)
	})
	bus.Subscribe(event.BatchCompleted, func(e event.Event) {
		logger.Info("批次完成", "run_id", e.RunID)
	})
	bus.Subscribe(event.BatchFailed, func(e event.Event) {
		logger.Error("批次失败", "run_id", e.RunID, "phase", e.Phase, "error", e.Error)
	})
	bus.Subscribe(event.LidMoved, func(e event.Event) {
		logger.Info("盖子搬运", "run_id", e.RunID, "detail", e.Detail)
	})
}
