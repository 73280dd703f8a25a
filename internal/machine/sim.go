package machine

import (
	"context"
	"fmt"
	"log/slog"

	"spectral-workcell/internal/util"
	"time"
)

// Sim 是模拟运动平台，用于演示与测试
// 所有运动立即"完成"，可配置的延时通过注入的时钟推进，
// 这样虚拟时钟下的测试能模拟真实的单瓶合成耗时
type Sim struct {
	clock  util.Clock
	delay  time.Duration // 每次运动消耗的时间
	logger *slog.Logger

	active  string
	x, y, z float64
	axes    map[Axis]float64
}

// NewSim 创建一个模拟机器
func NewSim(clock util.Clock, moveDelay time.Duration, logger *slog.Logger) *Sim {
	return &Sim{
		clock:  clock,
		delay:  moveDelay,
		logger: logger.With("component", "sim_machine"),
		axes:   make(map[Axis]float64),
	}
}

// MountTool 挂载工具；模拟器同样强制单工具约束
func (s *Sim) MountTool(ctx context.Context, tool string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.active != "" && s.active != tool {
		return fmt.Errorf("无法挂载 %s: 工具 %s 仍在挂载中", tool, s.active)
	}
	s.active = tool
	s.clock.Sleep(s.delay)
	s.logger.Debug("挂载工具", "tool", tool)
	return nil
}

func (s *Sim) ParkTool(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.active == "" {
		return nil
	}
	s.logger.Debug("停放工具", "tool", s.active)
	s.active = ""
	s.clock.Sleep(s.delay)
	return nil
}

func (s *Sim) ActiveTool() string { return s.active }

func (s *Sim) MoveTo(ctx context.Context, x, y, z float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.x, s.y, s.z = x, y, z
	s.clock.Sleep(s.delay)
	return nil
}

func (s *Sim) SafeZ(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.z = 150
	s.clock.Sleep(s.delay)
	return nil
}

func (s *Sim) MoveAxis(ctx context.Context, axis Axis, delta, speed float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.axes[axis] += delta
	s.clock.Sleep(s.delay)
	return nil
}

func (s *Sim) AxisPosition(axis Axis) float64 { return s.axes[axis] }

// Head 返回当前工具头坐标，测试用
func (s *Sim) Head() (x, y, z float64) { return s.x, s.y, s.z }
