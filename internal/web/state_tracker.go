package web

import (
	"sync"
	"time"

	"spectral-workcell/internal/types"
)

// VialState 定义了用于 UI 展示的样品瓶状态
// 这是一个简化的视图，只包含前端需要的数据
type VialState struct {
	Ref      string     `json:"ref"`
	Volume   float64    `json:"volume_ml"`
	Readings int        `json:"readings"`
	NextDue  *time.Time `json:"next_due,omitempty"`
	Status   string     `json:"status"`
}

// GlobalState 代表整个工作台的实时状态快照
type GlobalState struct {
	RunID string               `json:"run_id"`
	Phase string               `json:"phase"`
	Vials map[string]VialState `json:"vials"`
}

// StateTracker 负责追踪所有样品瓶的实时状态，并通知前端更新
type StateTracker struct {
	mu    sync.RWMutex
	state GlobalState
	hub   *Hub
}

// NewStateTracker 创建一个新的 StateTracker 实例
// 同时把自己注册为 Hub 的快照来源, 让新连接的客户端立刻收到全量状态
func NewStateTracker(hub *Hub, runID string) *StateTracker {
	st := &StateTracker{
		state: GlobalState{
			RunID: runID,
			Phase: "SYNTHESIZING",
			Vials: make(map[string]VialState),
		},
		hub: hub,
	}
	hub.SetSnapshot(func() interface{} { return st.GetStateSnapshot() })
	return st
}

// AddVial 将一个新样品瓶添加到状态追踪器中，并广播
func (st *StateTracker) AddVial(ref types.VialRef, volume float64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.state.Vials[ref.String()] = VialState{
		Ref:    ref.String(),
		Volume: volume,
		Status: "CREATED",
	}
	st.hub.BroadcastState(st.state)
}

// UpdateVial 更新单个样品瓶的状态，并向所有客户端广播最新的全局状态
func (st *StateTracker) UpdateVial(ref types.VialRef, volume float64, readings int, nextDue *time.Time, status string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if vial, ok := st.state.Vials[ref.String()]; ok {
		vial.Volume = volume
		vial.Readings = readings
		vial.NextDue = nextDue
		vial.Status = status
		st.state.Vials[ref.String()] = vial
	}
	// 注意：如果瓶子不存在，这里不会创建。新瓶子通过 AddVial 添加。

	st.hub.BroadcastState(st.state)
}

// SetPhase 更新调度器相位并广播
func (st *StateTracker) SetPhase(phase string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.state.Phase = phase
	st.hub.BroadcastState(st.state)
}

// GetStateSnapshot 返回当前全局状态的一个深拷贝副本
// 用于新客户端连接时获取一次全量数据
func (st *StateTracker) GetStateSnapshot() GlobalState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	// 创建深拷贝以避免并发问题
	newState := GlobalState{
		RunID: st.state.RunID,
		Phase: st.state.Phase,
		Vials: make(map[string]VialState),
	}
	for ref, v := range st.state.Vials {
		newState.Vials[ref] = v
	}
	return newState
}
