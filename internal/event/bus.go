package event

import (
	"sync"
	"time"

	"spectral-workcell/internal/types"
)

// EventType 定义事件的类型
type EventType string

// 定义所有业务事件类型
const (
	BatchStarted   EventType = "BatchStarted"   // 批次开始
	BatchCompleted EventType = "BatchCompleted" // 批次全部采样完成
	BatchFailed    EventType = "BatchFailed"    // 批次失败
	VialCreated    EventType = "VialCreated"    // 样品瓶合成完成
	VialSkipped    EventType = "VialSkipped"    // 样品瓶被规则跳过
	ReadingTaken   EventType = "ReadingTaken"   // 光谱采样完成
	LidMoved       EventType = "LidMoved"       // 盖子被取放
	PhaseChanged   EventType = "PhaseChanged"   // 调度器相位变化
)

// Event 结构体定义了事件的数据负载
// 台账只在单线程里被改写，事件在发布时携带快照数据，
// 处理器不需要（也不应该）回读台账
type Event struct {
	Type       EventType
	RunID      string         // 本次运行 ID
	Vial       types.VialRef  // 关联的样品瓶 (仅瓶相关事件)
	Volume     float64        // 发布时刻的瓶内液量
	Readings   int            // 发布时刻的采样计数
	DueAt      *time.Time     // 发布时刻的下次到期时刻
	ElapsedMin float64        // 采样的时间列索引 (仅 ReadingTaken)
	Phase      string         // 调度器相位 (仅 PhaseChanged)
	Detail     string         // 附加说明 (盖子来源/去向等)
	Error      error          // 错误信息 (仅失败事件)
}

// Handler 是事件处理函数的签名
type Handler func(e Event)

// Bus 是一个简单的内存事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler // 存储事件类型到多个处理函数的映射
}

// NewBus 创建一个新的事件总线实例
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe 订阅一个特定类型的事件
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish 发布一个事件，所有订阅了该事件类型的处理器都将被调用
// 处理器在发布者的调用线程上按订阅顺序同步执行:
// 事件携带的是状态快照, 乱序应用会让较旧的快照覆盖较新的;
// 处理器只做内存更新与通道投递, 不会拖慢编排主线程
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.handlers[e.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(e)
	}
}
