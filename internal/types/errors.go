package types

import "fmt"

// ConfigurationError 表示配置或配方前置条件错误
// 在任何硬件运动之前抛出，直接中止批次，不支持操作员覆盖
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ChannelRangeError 表示柱塞行程越界
// 即使补液后仍然越界时抛出，说明配方与通道容量不匹配，不做自动重试
type ChannelRangeError struct {
	Axis     string  // 通道所在的驱动轴
	Pos      float64 // 计算出的目标位置 (mm)
	Min, Max float64 // 通道的物理行程边界 (mm)
}

func (e *ChannelRangeError) Error() string {
	return fmt.Sprintf("channel %s travel out of range: %.2f not in [%.2f, %.2f]", e.Axis, e.Pos, e.Min, e.Max)
}

// StateMismatchError 表示内部模型与物理状态不一致（盖子状态、孔位液量）
// 属于可覆盖错误: 操作员确认后内部状态会被同步为物理现实，拒绝则转为致命错误
type StateMismatchError struct {
	Reason string
}

func (e *StateMismatchError) Error() string {
	return "state mismatch: " + e.Reason
}

// ToolActivationError 表示在未挂载的工具上执行了操作
// 这是编程层面的契约违反，永远不提供操作员覆盖路径
type ToolActivationError struct {
	Tool string
}

func (e *ToolActivationError) Error() string {
	return fmt.Sprintf("tool %q is not the active tool", e.Tool)
}
