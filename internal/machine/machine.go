package machine

import "context"

// Axis 定义运动平台的一个驱动轴
// X/Y/Z 是台面轴，E* 是各工具的柱塞驱动轴
type Axis string

const (
	AxisX Axis = "X"
	AxisY Axis = "Y"
	AxisZ Axis = "Z"
	AxisE0 Axis = "E0" // 双联通道 0
	AxisE1 Axis = "E1" // 双联通道 1
	AxisE2 Axis = "E2" // 单通道注射器
)

// Machine 是核心消费的工具/运动合同
// 挂载与停放是阻塞且串行的: 任一时刻至多挂载一个工具，
// 因此整个编排是单逻辑控制线程，没有工具内并行
type Machine interface {
	// MountTool 挂载指定工具；已有其他工具挂载时返回错误
	MountTool(ctx context.Context, tool string) error
	// ParkTool 停放当前工具
	ParkTool(ctx context.Context) error
	// ActiveTool 返回当前挂载的工具名，无则为空串
	ActiveTool() string

	// MoveTo 绝对移动到台面坐标
	MoveTo(ctx context.Context, x, y, z float64) error
	// SafeZ 抬升到安全高度后再做水平移动
	SafeZ(ctx context.Context) error
	// MoveAxis 对单个驱动轴做相对移动（柱塞原语）
	MoveAxis(ctx context.Context, axis Axis, delta, speed float64) error
	// AxisPosition 读取某个驱动轴的当前位置
	AxisPosition(axis Axis) float64
}
