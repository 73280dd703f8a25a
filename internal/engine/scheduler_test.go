package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"spectral-workcell/internal/event"
	"spectral-workcell/internal/fsm"
	"spectral-workcell/internal/ledger"
	"spectral-workcell/internal/types"
	"spectral-workcell/internal/util"
)

// recordingAction 是采样动作的替身: 只做台账记账并记录调用顺序
type recordingAction struct {
	led   *ledger.Ledger
	taken []types.VialRef
}

func (a *recordingAction) Take(ctx context.Context, v *ledger.Vial) error {
	a.taken = append(a.taken, v.Ref)
	_, err := a.led.RecordReading(v.Ref)
	return err
}

type schedRig struct {
	clock  *util.VirtualClock
	led    *ledger.Ledger
	action *recordingAction
	sm     *fsm.FSM
	sched  *Scheduler
}

func newSchedRig(t *testing.T, interval time.Duration, estimateMins float64, maxRecords int) *schedRig {
	t.Helper()
	clock := util.NewVirtualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	led := ledger.New(interval, clock)
	action := &recordingAction{led: led}
	sm := fsm.NewFSM("test_run")
	sched := NewScheduler(SchedulerParams{
		Ledger:         led,
		Action:         action,
		FSM:            sm,
		Bus:            event.NewBus(),
		Clock:          clock,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		RunID:          "test_run",
		EstimateMins:   estimateMins,
		MaxRecords:     maxRecords,
		YieldPreWindow: 10 * time.Second,
		YieldPoll:      time.Second,
		DrainPreWindow: 10 * time.Second,
		DrainPoll:      10 * time.Second,
	})
	return &schedRig{clock: clock, led: led, action: action, sm: sm, sched: sched}
}

func (r *schedRig) addVial(t *testing.T, ref types.VialRef) {
	t.Helper()
	r.led.Register(ref, 20)
	if err := r.led.ScheduleNextReading(ref); err != nil {
		t.Fatalf("排程失败: %v", err)
	}
}

func TestAfterVialCreatedContinuesWhenMarginSufficient(t *testing.T) {
	// 间隔 10 分钟, 合成估计 3 分钟: 裕量充足, 不让步
	rig := newSchedRig(t, 10*time.Minute, 3, 5)
	rig.addVial(t, types.VialRef{Slot: 2, Well: "A1"})

	before := rig.clock.Now()
	if err := rig.sched.AfterVialCreated(context.Background()); err != nil {
		t.Fatalf("调度失败: %v", err)
	}
	if len(rig.action.taken) != 0 {
		t.Fatalf("裕量充足时不应采样, 实际采了 %d 次", len(rig.action.taken))
	}
	if !rig.clock.Now().Equal(before) {
		t.Fatal("不让步时不应消耗任何时间")
	}
	if got := rig.sm.State(); got != fsm.StateSynthesizing {
		t.Fatalf("相位应保持 SYNTHESIZING, 实际 %s", got)
	}
}

func TestAfterVialCreatedYieldsAndChainsUntilMarginRecovers(t *testing.T) {
	// 间隔 2 分钟 < 估计 3 分钟: 每次采样后裕量依旧不足,
	// 调度器连续让步直到该瓶达到目标次数、排程被撤销
	rig := newSchedRig(t, 2*time.Minute, 3, 2)
	ref := types.VialRef{Slot: 2, Well: "A1"}
	rig.addVial(t, ref)

	if err := rig.sched.AfterVialCreated(context.Background()); err != nil {
		t.Fatalf("调度失败: %v", err)
	}
	if len(rig.action.taken) != 2 {
		t.Fatalf("应连续采样 2 次, 实际 %d", len(rig.action.taken))
	}
	v, err := rig.led.Get(ref)
	if err != nil {
		t.Fatalf("读台账失败: %v", err)
	}
	if v.NextDue != nil {
		t.Fatal("达到目标次数后排程应被撤销")
	}
	if got := rig.sm.State(); got != fsm.StateSynthesizing {
		t.Fatalf("让步结束后相位应回到 SYNTHESIZING, 实际 %s", got)
	}
}

func TestAfterVialCreatedWaitsUntilDue(t *testing.T) {
	rig := newSchedRig(t, 2*time.Minute, 3, 1)
	ref := types.VialRef{Slot: 2, Well: "A1"}
	rig.addVial(t, ref)
	due := *mustGet(t, rig.led, ref).NextDue

	if err := rig.sched.AfterVialCreated(context.Background()); err != nil {
		t.Fatalf("调度失败: %v", err)
	}
	if rig.clock.Now().Before(due) {
		t.Fatalf("采样不应早于到期时刻: now=%v due=%v", rig.clock.Now(), due)
	}
}

func TestDrainTakesAllVialsToTarget(t *testing.T) {
	rig := newSchedRig(t, 5*time.Minute, 3, 2)
	a := types.VialRef{Slot: 2, Well: "A1"}
	b := types.VialRef{Slot: 2, Well: "A2"}
	rig.addVial(t, a)
	rig.clock.Advance(time.Minute)
	rig.addVial(t, b)

	if err := rig.sched.Drain(context.Background()); err != nil {
		t.Fatalf("收尾采样失败: %v", err)
	}
	if !rig.led.AllReached(2) {
		t.Fatal("收尾后所有瓶都应达到目标次数")
	}
	if len(rig.action.taken) != 4 {
		t.Fatalf("两瓶各 2 次, 应采样 4 次, 实际 %d", len(rig.action.taken))
	}
	// A 先排程、先到期, 每轮都应先于 B 被采
	want := []types.VialRef{a, b, a, b}
	for i := range want {
		if rig.action.taken[i] != want[i] {
			t.Fatalf("采样顺序错误: 期望 %v, 实际 %v", want, rig.action.taken)
		}
	}
	if got := rig.sm.State(); got != fsm.StateCompleted {
		t.Fatalf("收尾结束后相位应为 COMPLETED, 实际 %s", got)
	}
}

func TestDrainFailsOnUnscheduledUnfinishedVial(t *testing.T) {
	rig := newSchedRig(t, 5*time.Minute, 3, 2)
	ref := types.VialRef{Slot: 2, Well: "A1"}
	rig.led.Register(ref, 20) // 只登记不排程

	err := rig.sched.Drain(context.Background())
	var mismatch *types.StateMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("未排程却未达标的瓶应导致 StateMismatchError, 实际 %v", err)
	}
}

func mustGet(t *testing.T, led *ledger.Ledger, ref types.VialRef) *ledger.Vial {
	t.Helper()
	v, err := led.Get(ref)
	if err != nil {
		t.Fatalf("读台账失败: %v", err)
	}
	return v
}
