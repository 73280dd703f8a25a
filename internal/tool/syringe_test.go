package tool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"spectral-workcell/internal/labware"
	"spectral-workcell/internal/machine"
	"spectral-workcell/internal/types"
	"spectral-workcell/internal/util"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testRig 装配一套最小的测试台面: 模拟机器、一个储液槽与一个样品架
type testRig struct {
	m       *machine.Sim
	confirm *ScriptedConfirmer
	res     *labware.Labware // 储液槽, 初始装满
	rack    *labware.Labware // 样品架
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	clock := util.NewVirtualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	r := &testRig{
		m:       machine.NewSim(clock, 0, testLogger()),
		confirm: &ScriptedConfirmer{},
		res:     labware.New("reservoir", 3, labware.Coord{X: 20, Y: 180, Z: 80}, 1, 2, 30, 80, 100, false),
		rack:    labware.New("samples", 2, labware.Coord{X: 160, Y: 25, Z: 90}, 2, 4, 35, 70, 20, false),
	}
	for _, w := range r.res.Wells() {
		w.Volume = w.Capacity
	}
	return r
}

// testChannel: 行程 100mm, 10mm/ml, 总容量 10ml, 预紧回抽 10mm
func testChannel(axis machine.Axis) Channel {
	return Channel{Axis: axis, Min: 0, Max: 100, MMPerML: 10, PrimingMM: 10}
}

func (r *testRig) syringe(t *testing.T) *Syringe {
	t.Helper()
	s, err := NewSyringe("syringe", r.m, r.confirm, testLogger(), testChannel(machine.AxisE2))
	if err != nil {
		t.Fatalf("创建注射器失败: %v", err)
	}
	return s
}

func (r *testRig) mount(t *testing.T, name string) {
	t.Helper()
	if err := r.m.MountTool(context.Background(), name); err != nil {
		t.Fatalf("挂载 %s 失败: %v", name, err)
	}
}

func TestRefillPositionIsIdempotent(t *testing.T) {
	rig := newRig(t)
	s := rig.syringe(t)
	rig.mount(t, s.Name)
	refill := At(rig.res.MustWell("A1"), -50)

	for i := 0; i < 2; i++ {
		if err := s.Refill(context.Background(), refill, 200); err != nil {
			t.Fatalf("第 %d 次补液失败: %v", i+1, err)
		}
		if got := s.Position(); got != 90 {
			t.Fatalf("补液后柱塞位置应为 Max-PrimingMM=90, 实际 %.2f", got)
		}
	}
	// 第一次补液抽走 10ml, 第二次只需补回预紧行程的 1ml
	if got := rig.res.MustWell("A1").Volume; got != 89 {
		t.Fatalf("储液槽液量应为 89, 实际 %.2f", got)
	}
}

func TestAspirateCappedByHeadroom(t *testing.T) {
	rig := newRig(t)
	s := rig.syringe(t)
	rig.mount(t, s.Name)

	if err := s.Refill(context.Background(), At(rig.res.MustWell("A1"), -50), 200); err != nil {
		t.Fatalf("补液失败: %v", err)
	}
	// 剩余空间只有 10mm = 1ml
	got, err := s.Aspirate(context.Background(), 5, 200)
	if err != nil {
		t.Fatalf("吸液失败: %v", err)
	}
	if got != 1 {
		t.Fatalf("应按剩余空间截断为 1ml, 实际 %.2f", got)
	}
	if pos := s.Position(); pos != 100 {
		t.Fatalf("柱塞应停在 Max=100, 实际 %.2f", pos)
	}

	// 已满时吸液是无动作的结果, 不是错误
	got, err = s.Aspirate(context.Background(), 1, 200)
	if err != nil {
		t.Fatalf("满通道吸液不应报错: %v", err)
	}
	if got != 0 {
		t.Fatalf("满通道吸液应返回 0, 实际 %.2f", got)
	}
}

func TestDispenseRefillsOnceOnUnderflow(t *testing.T) {
	rig := newRig(t)
	s := rig.syringe(t)
	rig.mount(t, s.Name)

	vial := rig.rack.MustWell("A1")
	target := At(vial, -10)
	refill := At(rig.res.MustWell("A2"), -50)

	// 空通道分液: 先补满 (10ml, 回抽预紧后持有 9ml) 再排出 3ml
	if err := s.Dispense(context.Background(), 3, target, refill, 200); err != nil {
		t.Fatalf("分液失败: %v", err)
	}
	if pos := s.Position(); pos != 60 {
		t.Fatalf("分液后柱塞位置应为 90-30=60, 实际 %.2f", pos)
	}
	if got := rig.res.MustWell("A2").Volume; got != 90 {
		t.Fatalf("储液槽应被抽走 10ml, 实际剩余 %.2f", got)
	}
	if got := vial.Volume; got != 3 {
		t.Fatalf("目标孔位液量应为 3, 实际 %.2f", got)
	}

	// 余量足够时不再补液
	if err := s.Dispense(context.Background(), 2, target, refill, 200); err != nil {
		t.Fatalf("分液失败: %v", err)
	}
	if pos := s.Position(); pos != 40 {
		t.Fatalf("柱塞位置应为 40, 实际 %.2f", pos)
	}
	if got := rig.res.MustWell("A2").Volume; got != 90 {
		t.Fatalf("第二次分液不应补液, 储液槽应保持 90, 实际 %.2f", got)
	}
}

func TestOverCapacityDispenseFailsBeforeMotion(t *testing.T) {
	rig := newRig(t)
	s := rig.syringe(t)
	rig.mount(t, s.Name)

	if err := s.Refill(context.Background(), At(rig.res.MustWell("A1"), -50), 200); err != nil {
		t.Fatalf("补液失败: %v", err)
	}
	posBefore := s.Position()
	xBefore, yBefore, _ := rig.m.Head()

	// 15ml 超过通道总容量 10ml, 必须在任何运动之前拒绝
	err := s.Dispense(context.Background(), 15, At(rig.rack.MustWell("A1"), -10), At(rig.res.MustWell("A2"), -50), 200)
	var rangeErr *types.ChannelRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("应返回 ChannelRangeError, 实际 %v", err)
	}
	if pos := s.Position(); pos != posBefore {
		t.Fatalf("失败后柱塞位置不应改变: %.2f -> %.2f", posBefore, pos)
	}
	if x, y, _ := rig.m.Head(); x != xBefore || y != yBefore {
		t.Fatalf("失败前不应有任何台面运动")
	}
}

func TestDualSyringeOffsetOnChannelOne(t *testing.T) {
	rig := newRig(t)
	d, err := NewDualSyringe("dual", rig.m, rig.confirm, testLogger(),
		testChannel(machine.AxisE0), testChannel(machine.AxisE1), 18)
	if err != nil {
		t.Fatalf("创建双联注射器失败: %v", err)
	}
	rig.mount(t, d.Name)

	vial := rig.rack.MustWell("B2")
	target := At(vial, -25)
	refill := At(rig.res.MustWell("A1"), -54)

	if err := d.Dispense(context.Background(), 0, 2, target, refill, 200); err != nil {
		t.Fatalf("通道 0 分液失败: %v", err)
	}
	if x, _, _ := rig.m.Head(); x != vial.Pos.X {
		t.Fatalf("通道 0 不应有横向修正: 期望 %.2f, 实际 %.2f", vial.Pos.X, x)
	}

	if err := d.Dispense(context.Background(), 1, 2, target, refill, 200); err != nil {
		t.Fatalf("通道 1 分液失败: %v", err)
	}
	if x, _, _ := rig.m.Head(); x != vial.Pos.X+18 {
		t.Fatalf("通道 1 应施加横向出口修正: 期望 %.2f, 实际 %.2f", vial.Pos.X+18, x)
	}
}

func TestUnmountedToolRefusesToOperate(t *testing.T) {
	rig := newRig(t)
	s := rig.syringe(t)
	// 不挂载直接操作

	_, err := s.Aspirate(context.Background(), 1, 200)
	var actErr *types.ToolActivationError
	if !errors.As(err, &actErr) {
		t.Fatalf("未挂载操作应返回 ToolActivationError, 实际 %v", err)
	}
}

func TestLidMismatchOverride(t *testing.T) {
	rig := newRig(t)
	rig.res.HasLidOnTop = true

	// 操作员确认覆盖: 继续执行, 内部盖子标志同步为预期状态
	rig.confirm.Answers = []bool{true}
	s := rig.syringe(t)
	rig.mount(t, s.Name)
	if err := s.Refill(context.Background(), At(rig.res.MustWell("A1"), -50), 200); err != nil {
		t.Fatalf("确认覆盖后补液应继续: %v", err)
	}
	if rig.res.HasLidOnTop {
		t.Fatal("确认覆盖后盖子标志应被同步为预期状态")
	}

	// 操作员拒绝: 以 StateMismatchError 中止
	rig2 := newRig(t)
	rig2.res.HasLidOnTop = true
	rig2.confirm.Answers = []bool{false}
	s2 := rig2.syringe(t)
	rig2.mount(t, s2.Name)
	err := s2.Refill(context.Background(), At(rig2.res.MustWell("A1"), -50), 200)
	var mismatch *types.StateMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("拒绝覆盖应返回 StateMismatchError, 实际 %v", err)
	}
}

func TestRefillOverrideResetsReservoirVolume(t *testing.T) {
	rig := newRig(t)
	s := rig.syringe(t)
	rig.mount(t, s.Name)

	// 储液槽簿记只剩 2ml, 补满需要 10ml
	res := rig.res.MustWell("A1")
	res.Volume = 2

	// 确认覆盖: 簿记液量被重置为容量以匹配被强制的物理现实
	rig.confirm.Answers = []bool{true}
	if err := s.Refill(context.Background(), At(res, -50), 200); err != nil {
		t.Fatalf("确认覆盖后补液应继续: %v", err)
	}
	if got := res.Volume; got != res.Capacity-10 {
		t.Fatalf("覆盖后储液槽液量应为 容量-10=%.2f, 实际 %.2f", res.Capacity-10, got)
	}
}
