package tool

import (
	"context"
	"log/slog"

	"spectral-workcell/internal/machine"
)

// Syringe 是单通道注射器工具
type Syringe struct {
	Base
	ch Channel
}

// NewSyringe 创建单通道注射器；通道参数非法时在任何运动之前失败
func NewSyringe(name string, m machine.Machine, confirm Confirmer, logger *slog.Logger, ch Channel) (*Syringe, error) {
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	return &Syringe{Base: NewBase(name, m, confirm, logger), ch: ch}, nil
}

// Aspirate 只做柱塞吸入，受剩余空间限制；返回实际吸入的体积
func (s *Syringe) Aspirate(ctx context.Context, vol, speed float64) (float64, error) {
	return s.aspirateChannel(ctx, s.ch, vol, speed)
}

// Dispense 向目标分液，必要时先从补液位置补满再重试
func (s *Syringe) Dispense(ctx context.Context, vol float64, target, refill Target, speed float64) error {
	return s.dispenseChannel(ctx, s.ch, vol, target, refill, speed)
}

// Refill 无条件补满注射器
func (s *Syringe) Refill(ctx context.Context, refill Target, speed float64) error {
	return s.refillChannel(ctx, s.ch, refill, speed)
}

// Mix 在目标孔位内交替吸排
func (s *Syringe) Mix(ctx context.Context, target Target, cycles int, vol, speed float64) error {
	return s.mixChannel(ctx, s.ch, target, cycles, vol, speed)
}

// Drain 把注射器内容全部排回目标
func (s *Syringe) Drain(ctx context.Context, target Target, speed float64) error {
	return s.drainChannel(ctx, s.ch, target, speed)
}

// Position 返回柱塞当前位置 (mm)，测试用
func (s *Syringe) Position() float64 {
	return s.m.AxisPosition(s.ch.Axis)
}
