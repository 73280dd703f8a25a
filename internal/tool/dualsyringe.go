package tool

import (
	"context"
	"fmt"
	"log/slog"

	"spectral-workcell/internal/machine"
	"spectral-workcell/internal/types"
)

// DualSyringe 是共享一个刀体的双联注射器
// 两个通道各自独立，但通道 1 的出口与通道 0 不重合，
// 其目标坐标需要加一个固定的横向修正
type DualSyringe struct {
	Base
	ch      [2]Channel
	OffsetX float64 // 通道 1 的横向出口偏移
}

// NewDualSyringe 创建双联注射器
func NewDualSyringe(name string, m machine.Machine, confirm Confirmer, logger *slog.Logger, ch0, ch1 Channel, offsetX float64) (*DualSyringe, error) {
	for _, c := range []Channel{ch0, ch1} {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return &DualSyringe{Base: NewBase(name, m, confirm, logger), ch: [2]Channel{ch0, ch1}, OffsetX: offsetX}, nil
}

func (d *DualSyringe) channel(idx int) (Channel, error) {
	if idx < 0 || idx > 1 {
		return Channel{}, &types.ConfigurationError{Reason: fmt.Sprintf("双联注射器没有通道 %d", idx)}
	}
	return d.ch[idx], nil
}

// shift 对通道 1 的作用点施加横向出口修正
func (d *DualSyringe) shift(idx int, t Target) Target {
	if idx == 1 {
		t.Coord.X += d.OffsetX
	}
	return t
}

// Aspirate 指定通道做柱塞吸入；返回实际吸入体积
func (d *DualSyringe) Aspirate(ctx context.Context, idx int, vol, speed float64) (float64, error) {
	c, err := d.channel(idx)
	if err != nil {
		return 0, err
	}
	return d.aspirateChannel(ctx, c, vol, speed)
}

// Dispense 指定通道向目标分液
func (d *DualSyringe) Dispense(ctx context.Context, idx int, vol float64, target, refill Target, speed float64) error {
	c, err := d.channel(idx)
	if err != nil {
		return err
	}
	return d.dispenseChannel(ctx, c, vol, d.shift(idx, target), d.shift(idx, refill), speed)
}

// Refill 无条件补满指定通道
func (d *DualSyringe) Refill(ctx context.Context, idx int, refill Target, speed float64) error {
	c, err := d.channel(idx)
	if err != nil {
		return err
	}
	return d.refillChannel(ctx, c, d.shift(idx, refill), speed)
}

// Drain 把指定通道的内容全部排回目标
func (d *DualSyringe) Drain(ctx context.Context, idx int, target Target, speed float64) error {
	c, err := d.channel(idx)
	if err != nil {
		return err
	}
	return d.drainChannel(ctx, c, d.shift(idx, target), speed)
}

// Position 返回指定通道的柱塞位置 (mm)，测试用
func (d *DualSyringe) Position(idx int) float64 {
	return d.m.AxisPosition(d.ch[idx].Axis)
}
