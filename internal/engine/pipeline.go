package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/antonmedv/expr"

	"spectral-workcell/internal/event"
	"spectral-workcell/internal/labware"
	"spectral-workcell/internal/ledger"
	"spectral-workcell/internal/metrics"
	"spectral-workcell/internal/persistence"
	"spectral-workcell/internal/tool"
	"spectral-workcell/internal/types"
	"spectral-workcell/internal/util"
)

// 液体工具的竖直作用偏置 (相对孔位顶面, mm)
// 数值来自工作站标定: 分液悬停在液面上方, 吸液/混合需要探到液面以下
const (
	dispenseZBias        = -10 // 单通道向样品瓶分液
	dualDispenseZBias    = -25 // 双联通道向样品瓶分液
	solventRefillZBias   = -50 // 单通道从溶剂槽补液
	precursorRefillZBias = -54 // 双联通道从前驱体槽补液
	mixZBias             = -65 // 混合时柱塞探入深度
)

// 液体操作速度 (mm/min)
const (
	dispenseSpeed = 300
	mixSpeed      = 120
)

// 双联通道编号: 0 为金属前驱体, 1 为有机前驱体
const (
	metalChannel   = 0
	organicChannel = 1
)

// Pipeline 实现样品瓶的合成管线
// 所有机械序列串行执行: 挂载 -> 操作 -> 停放, 任一时刻只有一个工具在机
type Pipeline struct {
	deck    *labware.Deck
	ledger  *ledger.Ledger
	single  *tool.Syringe
	dual    *tool.DualSyringe
	gripper *tool.VacuumGripper
	sched   *Scheduler
	reading ReadingAction
	journal *persistence.Journal
	bus     *event.Bus
	clock   util.Clock
	logger  *slog.Logger
	runID   string
	recipe  *types.Recipe
}

// NewPipeline 创建合成管线
func NewPipeline(deck *labware.Deck, led *ledger.Ledger, single *tool.Syringe, dual *tool.DualSyringe,
	gripper *tool.VacuumGripper, sched *Scheduler, reading ReadingAction, journal *persistence.Journal,
	bus *event.Bus, clock util.Clock, logger *slog.Logger, runID string, recipe *types.Recipe) *Pipeline {
	return &Pipeline{
		deck:    deck,
		ledger:  led,
		single:  single,
		dual:    dual,
		gripper: gripper,
		sched:   sched,
		reading: reading,
		journal: journal,
		bus:     bus,
		clock:   clock,
		logger:  logger.With("component", "pipeline"),
		runID:   runID,
		recipe:  recipe,
	}
}

// Prime 在批次开始前做一次灌注:
// 取下前驱体槽的保护盖, 把各通道的陈液排回储液槽后重新补满。
// 盖子整个批次保持取下 (每个瓶都要从前驱体槽补液), 批次结束后由 RestoreLid 放回
func (p *Pipeline) Prime(ctx context.Context) error {
	if err := p.moveLid(ctx, true); err != nil {
		return err
	}

	m := p.dual.Machine()
	if err := m.MountTool(ctx, p.dual.Name); err != nil {
		return err
	}
	for idx, wellID := range []types.WellID{metalChannel: "A1", organicChannel: "A2"} {
		w, err := p.deck.Precursors.Well(wellID)
		if err != nil {
			return err
		}
		refill := tool.At(w, precursorRefillZBias)
		if err := p.dual.Drain(ctx, idx, refill, dispenseSpeed); err != nil {
			return err
		}
		if err := p.dual.Refill(ctx, idx, refill, dispenseSpeed); err != nil {
			return err
		}
	}
	if err := m.ParkTool(ctx); err != nil {
		return err
	}

	if err := m.MountTool(ctx, p.single.Name); err != nil {
		return err
	}
	solvent, err := p.deck.Solvents.Well("A2")
	if err != nil {
		return err
	}
	refill := tool.At(solvent, solventRefillZBias)
	if err := p.single.Drain(ctx, refill, dispenseSpeed); err != nil {
		return err
	}
	if err := p.single.Refill(ctx, refill, dispenseSpeed); err != nil {
		return err
	}
	if err := m.ParkTool(ctx); err != nil {
		return err
	}

	p.logger.Info("管线灌注完成")
	return nil
}

// RestoreLid 在批次结束后把前驱体槽的保护盖放回
func (p *Pipeline) RestoreLid(ctx context.Context) error {
	return p.moveLid(ctx, false)
}

// moveLid 用真空吸盘在前驱体槽与停放位之间搬运盖子
func (p *Pipeline) moveLid(ctx context.Context, toPark bool) error {
	unit := p.deck.Precursors
	if unit.HasLidOnTop != toPark {
		// 已经在目标状态, 无需搬运
		return nil
	}

	m := p.gripper.Machine()
	if err := m.MountTool(ctx, p.gripper.Name); err != nil {
		return err
	}
	defer func() {
		if err := m.ParkTool(ctx); err != nil {
			p.logger.Error("停放真空吸盘失败", "error", err)
		}
	}()

	grip := unit.MustWell("A1").Top(0)
	park, err := p.deck.ParkWell(unit.Slot)
	if err != nil {
		return err
	}
	parkPos := park.Top(0)

	from, to := grip, parkPos
	detail := fmt.Sprintf("%s -> 停放位", unit)
	if !toPark {
		from, to = parkPos, grip
		detail = fmt.Sprintf("停放位 -> %s", unit)
	}
	if err := p.gripper.PickAndPlace(ctx, from, to); err != nil {
		return err
	}
	unit.HasLidOnTop = !toPark

	p.bus.Publish(event.Event{Type: event.LidMoved, RunID: p.runID, Detail: detail})
	p.logger.Info("盖子已搬运", "detail", detail)
	return nil
}

// Run 按插槽升序、槽内行主序合成配方中的每个瓶
// 每个瓶完成后做 0 分钟列的首次采样, 然后把控制权交给调度器决定是否让步;
// skip 中的瓶 (已从运行日志恢复) 不重复合成
func (p *Pipeline) Run(ctx context.Context, skip map[types.VialRef]bool) error {
	for _, slot := range p.recipe.OrderedSlots() {
		for _, wellID := range p.recipe.OrderedWells(slot) {
			ref := types.VialRef{Slot: slot, Well: wellID}
			spec := p.recipe.Slots[slot][wellID]

			if skip[ref] {
				p.logger.Info("样品瓶已恢复, 跳过合成", "vial", ref.String())
				continue
			}

			synth, err := p.shouldSynthesize(spec, ref)
			if err != nil {
				return err
			}
			if !synth {
				p.bus.Publish(event.Event{Type: event.VialSkipped, RunID: p.runID, Vial: ref})
				p.logger.Info("规则判定跳过样品瓶", "vial", ref.String(), "rule", spec.Rule)
				continue
			}

			vial, err := p.makeVial(ctx, ref, spec)
			if err != nil {
				return err
			}
			if err := p.reading.Take(ctx, vial); err != nil {
				return err
			}
			if err := p.sched.AfterVialCreated(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// makeVial 执行单个瓶的三段合成序列:
// 1. 单通道注射稀释溶剂, 余量排回溶剂槽
// 2. 双联注射金属/有机前驱体 (各自通道, 各自补液位)
// 3. 单通道在瓶内交替吸排混合
func (p *Pipeline) makeVial(ctx context.Context, ref types.VialRef, spec types.VialSpec) (*ledger.Vial, error) {
	well, err := p.deck.SampleWell(ref)
	if err != nil {
		return nil, err
	}
	vial := p.ledger.Register(ref, well.Capacity)
	p.logger.Info("开始合成样品瓶", "vial", ref.String(), "total_vol", spec.TotalVol())

	solventRefillWell, err := p.deck.Solvents.Well("A2")
	if err != nil {
		return nil, err
	}
	metalWell, err := p.deck.Precursors.Well("A1")
	if err != nil {
		return nil, err
	}
	organicWell, err := p.deck.Precursors.Well("A2")
	if err != nil {
		return nil, err
	}

	m := p.single.Machine()

	// 段 1: 稀释溶剂
	if err := m.MountTool(ctx, p.single.Name); err != nil {
		return nil, err
	}
	target := tool.AtLevel(well, dispenseZBias, vial)
	solventRefill := tool.At(solventRefillWell, solventRefillZBias)
	if err := p.single.Dispense(ctx, spec.SolventVol, target, solventRefill, dispenseSpeed); err != nil {
		return nil, err
	}
	if err := p.single.Drain(ctx, solventRefill, dispenseSpeed); err != nil {
		return nil, err
	}
	if err := m.ParkTool(ctx); err != nil {
		return nil, err
	}

	// 段 2: 前驱体
	if err := m.MountTool(ctx, p.dual.Name); err != nil {
		return nil, err
	}
	dualTarget := tool.AtLevel(well, dualDispenseZBias, vial)
	if err := p.dual.Dispense(ctx, metalChannel, spec.MetalPrecursorVol, dualTarget,
		tool.At(metalWell, precursorRefillZBias), dispenseSpeed); err != nil {
		return nil, err
	}
	if err := p.dual.Dispense(ctx, organicChannel, spec.OrganicPrecursorVol, dualTarget,
		tool.At(organicWell, precursorRefillZBias), dispenseSpeed); err != nil {
		return nil, err
	}
	if err := m.ParkTool(ctx); err != nil {
		return nil, err
	}

	// 段 3: 混合
	if err := m.MountTool(ctx, p.single.Name); err != nil {
		return nil, err
	}
	mixTarget := tool.AtLevel(well, mixZBias, vial)
	mixVol := spec.TotalVol() / 3
	for i := 0; i < 2; i++ {
		if err := p.single.Mix(ctx, mixTarget, 2, mixVol, mixSpeed); err != nil {
			return nil, err
		}
	}
	if err := m.ParkTool(ctx); err != nil {
		return nil, err
	}

	if err := p.ledger.ScheduleNextReading(ref); err != nil {
		return nil, err
	}
	now := p.clock.Now()
	if err := p.journal.VialCreated(ref, now); err != nil {
		p.logger.Warn("写入运行日志失败", "error", err)
	}
	metrics.VialsCreatedTotal.Inc()

	p.bus.Publish(event.Event{
		Type:   event.VialCreated,
		RunID:  p.runID,
		Vial:   ref,
		Volume: vial.Volume,
		DueAt:  vial.NextDue,
	})
	p.logger.Info("样品瓶合成完成", "vial", ref.String(), "volume", vial.Volume)
	return vial, nil
}

// shouldSynthesize 对瓶的规则表达式求值; 规则为空默认合成
// 表达式环境暴露该瓶的配比与位置, 例如 "total_vol > 5 && slot != 3"
func (p *Pipeline) shouldSynthesize(spec types.VialSpec, ref types.VialRef) (bool, error) {
	if spec.Rule == "" {
		return true, nil
	}
	env := map[string]interface{}{
		"metal_vol":   spec.MetalPrecursorVol,
		"organic_vol": spec.OrganicPrecursorVol,
		"solvent_vol": spec.SolventVol,
		"total_vol":   spec.TotalVol(),
		"slot":        int(ref.Slot),
		"well":        string(ref.Well),
	}
	program, err := expr.Compile(spec.Rule, expr.Env(env))
	if err != nil {
		return false, &types.ConfigurationError{Reason: fmt.Sprintf("规则编译失败 %q: %v", spec.Rule, err)}
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, &types.ConfigurationError{Reason: fmt.Sprintf("规则求值失败 %q: %v", spec.Rule, err)}
	}
	synth, ok := result.(bool)
	if !ok {
		return false, &types.ConfigurationError{Reason: fmt.Sprintf("规则 %q 的结果不是布尔值", spec.Rule)}
	}
	return synth, nil
}
