package tool

import (
	"context"
	"log/slog"

	"spectral-workcell/internal/labware"
	"spectral-workcell/internal/machine"
)

// VacuumGripper 是真空吸盘工具，负责盖子的取放
// 吸附/限位探测的机械细节在核心范围之外，这里只保留取放序列
type VacuumGripper struct {
	Base
}

// NewVacuumGripper 创建真空吸盘
func NewVacuumGripper(name string, m machine.Machine, confirm Confirmer, logger *slog.Logger) *VacuumGripper {
	return &VacuumGripper{Base: NewBase(name, m, confirm, logger)}
}

// PickAndPlace 把盖子从 from 移到 to
func (g *VacuumGripper) PickAndPlace(ctx context.Context, from, to labware.Coord) error {
	if err := g.requireActive(); err != nil {
		return err
	}
	if err := g.m.SafeZ(ctx); err != nil {
		return err
	}
	if err := g.m.MoveTo(ctx, from.X, from.Y, from.Z); err != nil {
		return err
	}
	if err := g.m.SafeZ(ctx); err != nil {
		return err
	}
	if err := g.m.MoveTo(ctx, to.X, to.Y, to.Z); err != nil {
		return err
	}
	return g.m.SafeZ(ctx)
}
