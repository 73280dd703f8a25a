package tool

import (
	"context"
	"fmt"
	"log/slog"

	"spectral-workcell/internal/labware"
	"spectral-workcell/internal/machine"
	"spectral-workcell/internal/types"
)

// VolumeTracker 抽象一个可读写液量的作用目标
// 台账条目（样品瓶）与储液槽孔位都实现它，液量预检因此只有一条路径
type VolumeTracker interface {
	CurrentVolume() float64
	TotalCapacity() float64
	SetVolume(v float64)
}

// Target 描述一次工具操作的作用点: 坐标、所属载架与可选的液量簿记
type Target struct {
	Coord labware.Coord
	Unit  *labware.Labware // 盖子状态校验的对象，可为 nil
	Level VolumeTracker    // 液量预检与更新的对象，可为 nil
}

// At 由孔位和竖直偏置构造作用点
func At(w *labware.Well, zBias float64) Target {
	return Target{Coord: w.Top(zBias), Unit: w.Unit(), Level: w}
}

// AtLevel 与 At 相同，但液量簿记指向外部条目（台账中的样品瓶）
func AtLevel(w *labware.Well, zBias float64, level VolumeTracker) Target {
	return Target{Coord: w.Top(zBias), Unit: w.Unit(), Level: level}
}

// Base 是所有工具的公共部分: 名字、机器合同、确认端口与日志
type Base struct {
	Name    string
	m       machine.Machine
	confirm Confirmer
	logger  *slog.Logger
}

// NewBase 组装工具公共部分
func NewBase(name string, m machine.Machine, confirm Confirmer, logger *slog.Logger) Base {
	return Base{Name: name, m: m, confirm: confirm, logger: logger.With("tool", name)}
}

// Machine 暴露底层机器合同（管线需要挂载/停放）
func (b *Base) Machine() machine.Machine { return b.m }

// requireActive 校验本工具当前已挂载
// 未挂载即操作是编程契约违反，直接返回致命的 ToolActivationError
func (b *Base) requireActive() error {
	if b.m.ActiveTool() != b.Name {
		return &types.ToolActivationError{Tool: b.Name}
	}
	return nil
}

// ensureLidState 校验载架盖子状态与预期一致
// 不一致时询问操作员: 确认则把内部盖子标志同步为预期状态后继续，
// 拒绝则返回 StateMismatchError 中止
func (b *Base) ensureLidState(unit *labware.Labware, expectLid bool) error {
	if unit == nil || unit.HasLidOnTop == expectLid {
		return nil
	}
	var prompt string
	if unit.HasLidOnTop {
		prompt = fmt.Sprintf("载架 %s 的盖子仍在上面", unit)
	} else {
		prompt = fmt.Sprintf("载架 %s 的盖子不在上面", unit)
	}
	b.logger.Warn("盖子状态不一致, 等待操作员确认", "labware", unit.String(), "expect_lid", expectLid)
	if b.confirm.Confirm(prompt) {
		unit.HasLidOnTop = expectLid
		return nil
	}
	return &types.StateMismatchError{Reason: prompt}
}

// checkLevel 预检作用目标的液量范围
// 分液时目标不能溢出容量，吸液时目标液量不能为负；
// 操作员覆盖吸液超额时，把簿记液量重置为容量以匹配被强制的物理现实
func (b *Base) checkLevel(level VolumeTracker, vol float64, isDispense bool) error {
	if level == nil {
		return nil
	}
	if isDispense {
		if level.CurrentVolume()+vol <= level.TotalCapacity() {
			return nil
		}
		prompt := fmt.Sprintf("目标孔位无法容纳 %.2f ml 分液 (当前 %.2f / 容量 %.2f)",
			vol, level.CurrentVolume(), level.TotalCapacity())
		if b.confirm.Confirm(prompt) {
			return nil
		}
		return &types.StateMismatchError{Reason: prompt}
	}
	if level.CurrentVolume()-vol >= 0 {
		return nil
	}
	prompt := fmt.Sprintf("目标孔位液量不足以吸取 %.2f ml (当前 %.2f)", vol, level.CurrentVolume())
	if b.confirm.Confirm(prompt) {
		level.SetVolume(level.TotalCapacity())
		return nil
	}
	return &types.StateMismatchError{Reason: prompt}
}

// moveToTarget 以安全 Z 样式接近目标: 抬升、水平移动、下探
func (b *Base) moveToTarget(ctx context.Context, t Target) error {
	if err := b.m.SafeZ(ctx); err != nil {
		return err
	}
	if err := b.m.MoveTo(ctx, t.Coord.X, t.Coord.Y, t.Coord.Z); err != nil {
		return err
	}
	return nil
}
