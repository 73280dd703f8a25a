package engine

import (
	"context"
	"log/slog"
	"time"

	"spectral-workcell/internal/event"
	"spectral-workcell/internal/fsm"
	"spectral-workcell/internal/ledger"
	"spectral-workcell/internal/metrics"
	"spectral-workcell/internal/types"
	"spectral-workcell/internal/util"
)

// ReadingAction 是调度器对 "执行一次采样" 的端口
// 调度只负责决定何时、对哪个瓶采样；机械序列由实现方完成
type ReadingAction interface {
	Take(ctx context.Context, v *ledger.Vial) error
}

// Scheduler 实现单线程协作式的采样排程
// 没有后台 goroutine: 合成管线在每个瓶之间显式调用 AfterVialCreated，
// 由调度器决定是继续合成还是让步采样；全部等待通过注入的时钟表达
type Scheduler struct {
	ledger   *ledger.Ledger
	action   ReadingAction
	sm       *fsm.FSM
	bus      *event.Bus
	clock    util.Clock
	logger   *slog.Logger
	runID    string
	estimate time.Duration // 单瓶合成的估计耗时, 让步判据

	maxRecords     int
	yieldPreWindow time.Duration
	yieldPoll      time.Duration
	drainPreWindow time.Duration
	drainPoll      time.Duration
}

// SchedulerParams 汇集调度器的全部依赖与窗口参数
type SchedulerParams struct {
	Ledger         *ledger.Ledger
	Action         ReadingAction
	FSM            *fsm.FSM
	Bus            *event.Bus
	Clock          util.Clock
	Logger         *slog.Logger
	RunID          string
	EstimateMins   float64
	MaxRecords     int
	YieldPreWindow time.Duration
	YieldPoll      time.Duration
	DrainPreWindow time.Duration
	DrainPoll      time.Duration
}

// NewScheduler 创建调度器
func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		ledger:         p.Ledger,
		action:         p.Action,
		sm:             p.FSM,
		bus:            p.Bus,
		clock:          p.Clock,
		logger:         p.Logger.With("component", "scheduler"),
		runID:          p.RunID,
		estimate:       time.Duration(p.EstimateMins * float64(time.Minute)),
		maxRecords:     p.MaxRecords,
		yieldPreWindow: p.YieldPreWindow,
		yieldPoll:      p.YieldPoll,
		drainPreWindow: p.DrainPreWindow,
		drainPoll:      p.DrainPoll,
	}
}

// AfterVialCreated 在每个瓶合成完成后由管线调用
// 决策: 若最近到期的采样裕量仍容得下一个合成周期, 立即返回继续合成；
// 否则让步, 在到期前置窗口内轮询并完成采样, 然后重新评估
// (刚完成的采样可能把下一个到期又推到了眼前, 所以是循环而非单次)
func (s *Scheduler) AfterVialCreated(ctx context.Context) error {
	for {
		v, margin, ok := s.ledger.NearestDue()
		if !ok {
			return nil
		}
		if margin >= s.estimate {
			s.logger.Debug("裕量充足, 继续合成",
				"vial", v.Ref.String(), "margin", margin.String(), "estimate", s.estimate.String())
			return nil
		}

		if err := s.sm.Fire(fsm.EventYield); err != nil {
			return err
		}
		s.publishPhase()
		s.logger.Info("让步采样", "vial", v.Ref.String(), "margin", margin.String())

		if err := s.waitAndTake(ctx, v, s.yieldPreWindow, s.yieldPoll); err != nil {
			return err
		}

		if err := s.sm.Fire(fsm.EventResume); err != nil {
			return err
		}
		s.publishPhase()
	}
}

// Drain 在全部瓶子合成完毕后收尾: 轮询采样直到所有瓶达到目标次数
func (s *Scheduler) Drain(ctx context.Context) error {
	if err := s.sm.Fire(fsm.EventDrain); err != nil {
		return err
	}
	s.publishPhase()
	s.logger.Info("合成结束, 进入收尾采样", "target_readings", s.maxRecords)

	for !s.ledger.AllReached(s.maxRecords) {
		v, _, ok := s.ledger.NearestDue()
		if !ok {
			// 有瓶子没达标却无人排程, 属于编程错误, 不能无限轮询
			return &types.StateMismatchError{Reason: "仍有瓶子未达到目标采样数, 但台账中没有已排程的条目"}
		}
		if err := s.waitAndTake(ctx, v, s.drainPreWindow, s.drainPoll); err != nil {
			return err
		}
	}

	if err := s.sm.Fire(fsm.EventFinish); err != nil {
		return err
	}
	s.publishPhase()
	return nil
}

// waitAndTake 轮询等待一个瓶到期, 执行采样, 并在达到目标次数后撤销排程
// 等待分两段: 距离到期超出前置窗口时粗睡到窗口边缘, 窗口内按 poll 间隔细查
func (s *Scheduler) waitAndTake(ctx context.Context, v *ledger.Vial, preWindow, poll time.Duration) error {
	waited := time.Duration(0)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if v.NextDue == nil {
			break
		}
		remaining := v.NextDue.Sub(s.clock.Now())
		if remaining <= 0 {
			break
		}
		step := poll
		if remaining > preWindow {
			step = remaining - preWindow
		}
		s.clock.Sleep(step)
		waited += step
	}
	metrics.DueWaitSeconds.Observe(waited.Seconds())

	if err := s.action.Take(ctx, v); err != nil {
		return err
	}
	// 采样动作负责在达标时撤销排程; 这里兜底, 保证调度循环不会被
	// 一个达标却仍在排程中的瓶困住
	if v.Readings >= s.maxRecords && v.NextDue != nil {
		if err := s.ledger.ClearDue(v.Ref); err != nil {
			return err
		}
		s.logger.Info("样品瓶达到目标采样数", "vial", v.Ref.String(), "readings", v.Readings)
	}
	return nil
}

func (s *Scheduler) publishPhase() {
	s.bus.Publish(event.Event{
		Type:  event.PhaseChanged,
		RunID: s.runID,
		Phase: string(s.sm.State()),
	})
}
