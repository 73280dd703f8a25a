package engine

import (
	"context"
	"log/slog"

	"spectral-workcell/internal/config"
	"spectral-workcell/internal/event"
	"spectral-workcell/internal/fsm"
	"spectral-workcell/internal/labware"
	"spectral-workcell/internal/ledger"
	"spectral-workcell/internal/persistence"
	"spectral-workcell/internal/types"
	"spectral-workcell/internal/util"
)

// Experiment 编排一次完整的批量合成+采样实验
// 流程: 配方校验 -> 日志恢复 -> 灌注 -> 逐瓶合成(穿插让步采样) -> 收尾采样 -> 还盖
type Experiment struct {
	cfg      *config.Config
	recipe   *types.Recipe
	deck     *labware.Deck
	ledger   *ledger.Ledger
	pipeline *Pipeline
	sched    *Scheduler
	journal  *persistence.Journal
	bus      *event.Bus
	sm       *fsm.FSM
	clock    util.Clock
	logger   *slog.Logger
	runID    string
}

// NewExperiment 创建实验编排器
func NewExperiment(cfg *config.Config, recipe *types.Recipe, deck *labware.Deck, led *ledger.Ledger,
	pipeline *Pipeline, sched *Scheduler, journal *persistence.Journal, bus *event.Bus,
	sm *fsm.FSM, clock util.Clock, logger *slog.Logger, runID string) *Experiment {
	return &Experiment{
		cfg:      cfg,
		recipe:   recipe,
		deck:     deck,
		ledger:   led,
		pipeline: pipeline,
		sched:    sched,
		journal:  journal,
		bus:      bus,
		sm:       sm,
		clock:    clock,
		logger:   logger.With("component", "experiment"),
		runID:    runID,
	}
}

// Run 执行整个批次; 任何阶段失败都会把状态机置为 FAILED 并广播失败事件
// 运行 ID 注入 Context, 深层的采样动作以此关联事件与本次运行
func (e *Experiment) Run(ctx context.Context) error {
	ctx = util.ContextWithRunID(ctx, e.runID)

	// 任何硬件运动之前先校验配方前置条件
	if err := config.ValidateRecipe(e.recipe, e.cfg.MakeVialEstimateMins); err != nil {
		return e.fail(err)
	}

	e.bus.Publish(event.Event{Type: event.BatchStarted, RunID: e.runID})
	e.logger.Info("批次开始", "vials", e.recipe.VialCount(),
		"interval_mins", e.recipe.SpectrumRecordIntervalMins, "max_records", e.recipe.MaxSpectrumRecords)

	skip, err := e.recover()
	if err != nil {
		return e.fail(err)
	}

	if err := e.pipeline.Prime(ctx); err != nil {
		return e.fail(err)
	}
	if err := e.pipeline.Run(ctx, skip); err != nil {
		return e.fail(err)
	}
	if err := e.sched.Drain(ctx); err != nil {
		return e.fail(err)
	}
	if err := e.pipeline.RestoreLid(ctx); err != nil {
		return e.fail(err)
	}

	e.bus.Publish(event.Event{Type: event.BatchCompleted, RunID: e.runID})
	e.logger.Info("批次全部完成")
	return nil
}

// recover 从运行日志恢复上一次中断的批次进度
// 已合成的瓶直接登记进台账并恢复采样计数, 不重复合成;
// 未达标的恢复瓶重新排程, 已达标的保持未排程
func (e *Experiment) recover() (map[types.VialRef]bool, error) {
	recovered, err := e.journal.Recover()
	if err != nil {
		return nil, err
	}

	skip := make(map[types.VialRef]bool)
	for _, rv := range recovered {
		spec, ok := e.recipe.Slots[rv.Ref.Slot][rv.Ref.Well]
		if !ok {
			// 日志里的瓶不在当前配方中, 忽略
			continue
		}
		well, err := e.deck.SampleWell(rv.Ref)
		if err != nil {
			return nil, err
		}
		vial := e.ledger.Register(rv.Ref, well.Capacity)
		vial.Volume = spec.TotalVol()
		if rv.Readings < e.recipe.MaxSpectrumRecords {
			if err := e.ledger.ScheduleNextReading(rv.Ref); err != nil {
				return nil, err
			}
		}
		vial.Readings = rv.Readings
		skip[rv.Ref] = true

		e.bus.Publish(event.Event{
			Type:     event.VialCreated,
			RunID:    e.runID,
			Vial:     rv.Ref,
			Volume:   vial.Volume,
			Readings: vial.Readings,
			DueAt:    vial.NextDue,
			Detail:   "从运行日志恢复",
		})
		e.logger.Info("从运行日志恢复样品瓶", "vial", rv.Ref.String(), "readings", rv.Readings)
	}
	return skip, nil
}

func (e *Experiment) fail(err error) error {
	// 已到终态时状态机会拒绝转移, 忽略即可
	_ = e.sm.Fire(fsm.EventFail)
	e.bus.Publish(event.Event{Type: event.BatchFailed, RunID: e.runID, Error: err, Phase: string(e.sm.State())})
	e.logger.Error("批次失败", "error", err)
	return err
}
