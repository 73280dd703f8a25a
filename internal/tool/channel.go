package tool

import (
	"context"
	"fmt"

	"spectral-workcell/internal/machine"
	"spectral-workcell/internal/metrics"
	"spectral-workcell/internal/types"
)

// 补液移动使用固定的较低速度，避免高速吸液带入气泡
const refillSpeed = 150

// Channel 描述一个有界、位置跟踪的柱塞通道
// 位置由机器的驱动轴持有，通道只负责体积↔行程换算与边界守卫；
// 任何算出的终点越出 [Min, Max] 都是硬失败，这是防止柱塞过冲的唯一正确性边界
type Channel struct {
	Axis      machine.Axis
	Min, Max  float64 // 物理行程边界 (mm)
	MMPerML   float64 // 体积-行程换算系数
	PrimingMM float64 // 补液后的回抽预紧行程
}

// Validate 检查通道参数；非法边界在任何运动之前即拒绝
func (c Channel) Validate() error {
	if c.Min >= c.Max {
		return &types.ConfigurationError{Reason: fmt.Sprintf("通道 %s 行程边界非法: [%.2f, %.2f]", c.Axis, c.Min, c.Max)}
	}
	if c.MMPerML <= 0 {
		return &types.ConfigurationError{Reason: fmt.Sprintf("通道 %s 换算系数必须为正", c.Axis)}
	}
	if c.PrimingMM < 0 || c.PrimingMM >= c.Max-c.Min {
		return &types.ConfigurationError{Reason: fmt.Sprintf("通道 %s 预紧行程 %.2f 非法", c.Axis, c.PrimingMM)}
	}
	return nil
}

// CapacityML 返回通道的总容量
func (c Channel) CapacityML() float64 {
	return (c.Max - c.Min) / c.MMPerML
}

// ContentsML 返回通道当前持有的体积
func (b *Base) contentsML(c Channel) float64 {
	return (b.m.AxisPosition(c.Axis) - c.Min) / c.MMPerML
}

// aspirateChannel 朝 Max 方向移动体积等效的行程，受剩余空间限制
// 返回实际吸入的体积；没有剩余空间时是无动作的结果，不是错误
func (b *Base) aspirateChannel(ctx context.Context, c Channel, vol, speed float64) (float64, error) {
	if err := b.requireActive(); err != nil {
		return 0, err
	}
	pos := b.m.AxisPosition(c.Axis)
	desired := vol * c.MMPerML
	headroom := c.Max - pos
	actual := desired
	if headroom < actual {
		actual = headroom
	}
	if actual <= 0 {
		// 通道已满
		return 0, nil
	}
	end := pos + actual
	if end > c.Max || end < c.Min {
		return 0, &types.ChannelRangeError{Axis: string(c.Axis), Pos: end, Min: c.Min, Max: c.Max}
	}
	if err := b.m.MoveAxis(ctx, c.Axis, actual, speed); err != nil {
		return 0, err
	}
	return actual / c.MMPerML, nil
}

// dispensePlunger 只做柱塞排出，不含移动与补液；mix 的回程使用
func (b *Base) dispensePlunger(ctx context.Context, c Channel, vol, speed float64) error {
	pos := b.m.AxisPosition(c.Axis)
	end := pos - vol*c.MMPerML
	if end < c.Min || end > c.Max {
		return &types.ChannelRangeError{Axis: string(c.Axis), Pos: end, Min: c.Min, Max: c.Max}
	}
	return b.m.MoveAxis(ctx, c.Axis, -vol*c.MMPerML, speed)
}

// refillChannel 无条件补满: 吸到 Max 后回抽预紧行程
// 之后的位置恒等于 Max - PrimingMM，与之前的状态无关
func (b *Base) refillChannel(ctx context.Context, c Channel, refill Target, speed float64) error {
	if err := b.requireActive(); err != nil {
		return err
	}
	if err := b.ensureLidState(refill.Unit, false); err != nil {
		return err
	}
	if err := b.moveToTarget(ctx, refill); err != nil {
		return err
	}
	headroom := c.Max - b.m.AxisPosition(c.Axis)
	if headroom > 0 {
		if err := b.checkLevel(refill.Level, headroom/c.MMPerML, false); err != nil {
			return err
		}
		if err := b.m.MoveAxis(ctx, c.Axis, headroom, speed); err != nil {
			return err
		}
		if refill.Level != nil {
			refill.Level.SetVolume(refill.Level.CurrentVolume() - headroom/c.MMPerML)
		}
	}
	if err := b.m.MoveAxis(ctx, c.Axis, -c.PrimingMM, speed); err != nil {
		return err
	}
	metrics.ChannelRefillsTotal.WithLabelValues(b.Name, string(c.Axis)).Inc()
	b.logger.Info("通道已补满", "axis", c.Axis, "pos", b.m.AxisPosition(c.Axis))
	return nil
}

// dispenseChannel 向目标分液
// 终点若低于 Min 先做一次补液再重试；补液后仍越界则以 ChannelRangeError 失败，
// 这是配方与通道容量不匹配的信号，不做自动重试。
// 一次就超过总容量的分液在任何运动之前拒绝，通道位置保持不变
func (b *Base) dispenseChannel(ctx context.Context, c Channel, vol float64, target, refill Target, speed float64) error {
	if err := b.requireActive(); err != nil {
		return err
	}
	if err := b.ensureLidState(target.Unit, false); err != nil {
		return err
	}

	travel := vol * c.MMPerML
	pos := b.m.AxisPosition(c.Axis)
	if travel > c.Max-c.Min {
		return &types.ChannelRangeError{Axis: string(c.Axis), Pos: pos - travel, Min: c.Min, Max: c.Max}
	}
	if err := b.checkLevel(target.Level, vol, true); err != nil {
		return err
	}

	if pos-travel < c.Min {
		if err := b.refillChannel(ctx, c, refill, refillSpeed); err != nil {
			return err
		}
	}

	if err := b.moveToTarget(ctx, target); err != nil {
		return err
	}

	// 补液后重新读位置再投影终点
	pos = b.m.AxisPosition(c.Axis)
	if pos-travel < c.Min {
		return &types.ChannelRangeError{Axis: string(c.Axis), Pos: pos - travel, Min: c.Min, Max: c.Max}
	}
	if err := b.m.MoveAxis(ctx, c.Axis, -travel, speed); err != nil {
		return err
	}
	if target.Level != nil {
		target.Level.SetVolume(target.Level.CurrentVolume() + vol)
	}
	metrics.DispensedMilliliters.WithLabelValues(b.Name).Add(vol)
	return nil
}

// mixChannel 在目标孔位内交替吸排指定次数
// 回程排出的是刚吸入的同一份液体，因此不需要补液位置
func (b *Base) mixChannel(ctx context.Context, c Channel, target Target, cycles int, vol, speed float64) error {
	if err := b.requireActive(); err != nil {
		return err
	}
	if err := b.ensureLidState(target.Unit, false); err != nil {
		return err
	}
	if err := b.moveToTarget(ctx, target); err != nil {
		return err
	}
	for i := 0; i < cycles; i++ {
		actual, err := b.aspirateChannel(ctx, c, vol, speed)
		if err != nil {
			return err
		}
		if err := b.dispensePlunger(ctx, c, actual, speed); err != nil {
			return err
		}
	}
	return nil
}

// drainChannel 把通道当前持有的全部内容排回目标（储液槽）
// 用于合成步骤之间的通道复位与一次性灌注前的清空
func (b *Base) drainChannel(ctx context.Context, c Channel, target Target, speed float64) error {
	if err := b.requireActive(); err != nil {
		return err
	}
	if err := b.ensureLidState(target.Unit, false); err != nil {
		return err
	}
	content := b.contentsML(c)
	if content <= 0 {
		return nil
	}
	if err := b.moveToTarget(ctx, target); err != nil {
		return err
	}
	if err := b.m.MoveAxis(ctx, c.Axis, -content*c.MMPerML, speed); err != nil {
		return err
	}
	if target.Level != nil {
		target.Level.SetVolume(target.Level.CurrentVolume() + content)
	}
	return nil
}
