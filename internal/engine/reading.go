package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"spectral-workcell/internal/event"
	"spectral-workcell/internal/labware"
	"spectral-workcell/internal/ledger"
	"spectral-workcell/internal/metrics"
	"spectral-workcell/internal/persistence"
	"spectral-workcell/internal/tool"
	"spectral-workcell/internal/util"
)

// 光谱探头的竖直作用偏置 (相对孔位顶面, mm)
const (
	probeZBias = -45 // 浸入样品液面的探测深度
	washZBias  = -35 // 清洗孔位的浸洗深度
	refZBias   = -35 // 基准采集时的悬停深度
)

// Reading 实现一次完整的采样机械序列:
// 挂载光谱仪 -> 基准就绪 -> 采谱落盘 -> 记账 -> 洗探头 -> 停放
type Reading struct {
	spec         *tool.Spectrometer
	deck         *labware.Deck
	ledger       *ledger.Ledger
	journal      *persistence.Journal
	bus          *event.Bus
	clock        util.Clock
	logger       *slog.Logger
	intervalMins float64
	maxRecords   int
	washCycles   int
}

// NewReading 创建采样动作
func NewReading(spec *tool.Spectrometer, deck *labware.Deck, led *ledger.Ledger,
	journal *persistence.Journal, bus *event.Bus, clock util.Clock, logger *slog.Logger,
	intervalMins float64, maxRecords, washCycles int) *Reading {
	return &Reading{
		spec:         spec,
		deck:         deck,
		ledger:       led,
		journal:      journal,
		bus:          bus,
		clock:        clock,
		logger:       logger.With("component", "reading"),
		intervalMins: intervalMins,
		maxRecords:   maxRecords,
		washCycles:   washCycles,
	}
}

// Take 对一个样品瓶执行一次采样
// 时间列索引由已完成的采样次数推出: 第 N+1 次采样的列是 N*interval 分钟,
// 首次采样 (合成刚完成) 即 0 分钟列。
// 达到目标采样次数的瓶在这里立即撤销排程: 不论本次采样是 0 分钟列
// 还是调度器让步/收尾触发的, 该瓶都不会再出现在近期扫描中
func (r *Reading) Take(ctx context.Context, v *ledger.Vial) error {
	m := r.spec.Machine()
	if err := m.MountTool(ctx, r.spec.Name); err != nil {
		return fmt.Errorf("挂载光谱仪失败: %w", err)
	}
	defer func() {
		if err := m.ParkTool(ctx); err != nil {
			r.logger.Error("停放光谱仪失败", "error", err)
		}
	}()

	// 基准采集使用清洗孔位, 探头悬停不浸入
	washWell, err := r.deck.Solvents.Well("A1")
	if err != nil {
		return err
	}
	if err := r.spec.EnsureReferences(ctx, tool.At(washWell, refZBias)); err != nil {
		return err
	}

	well, err := r.deck.SampleWell(v.Ref)
	if err != nil {
		return err
	}

	elapsedMin := float64(v.Readings) * r.intervalMins
	view := ledger.View{Vial: v, Well: well, ZBias: probeZBias}
	target := tool.Target{Coord: view.Approach(), Unit: well.Unit(), Level: v}

	if _, _, err := r.spec.Collect(ctx, target, v.Ref, elapsedMin); err != nil {
		return fmt.Errorf("采集样品瓶 %s 失败: %w", v.Ref, err)
	}

	count, err := r.ledger.RecordReading(v.Ref)
	if err != nil {
		return err
	}
	if count >= r.maxRecords {
		if err := r.ledger.ClearDue(v.Ref); err != nil {
			return err
		}
		r.logger.Info("样品瓶达到目标采样数", "vial", v.Ref.String(), "readings", count)
	}

	now := r.clock.Now()
	if err := r.journal.ReadingTaken(v.Ref, count, now); err != nil {
		r.logger.Warn("写入运行日志失败", "error", err)
	}
	metrics.ReadingsTakenTotal.WithLabelValues(strconv.Itoa(int(v.Ref.Slot))).Inc()

	var due *time.Time
	if v.NextDue != nil {
		d := *v.NextDue
		due = &d
	}
	runID, _ := util.RunIDFromContext(ctx)
	r.bus.Publish(event.Event{
		Type:       event.ReadingTaken,
		RunID:      runID,
		Vial:       v.Ref,
		Volume:     v.Volume,
		Readings:   count,
		DueAt:      due,
		ElapsedMin: elapsedMin,
	})
	r.logger.Info("采样完成", "vial", v.Ref.String(), "readings", count, "elapsed_min", elapsedMin)

	return r.spec.WashProbe(ctx, tool.At(washWell, washZBias), r.washCycles)
}
