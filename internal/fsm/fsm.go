package fsm

import (
	"fmt"
	"sync"
)

// State 定义调度器相位
type State string

// Event 定义相位转移事件
type Event string

const (
	StateSynthesizing State = "SYNTHESIZING"         // 正在合成样品瓶
	StateYielding     State = "YIELDING_FOR_READING" // 让出合成时间去采样
	StateDraining     State = "DRAINING"             // 合成全部结束, 收尾采样中
	StateCompleted    State = "COMPLETED"
	StateFailed       State = "FAILED"
)

const (
	EventYield  Event = "YIELD"  // 下一次采样窗口容不下一个合成周期
	EventResume Event = "RESUME" // 采样完成, 回到合成
	EventDrain  Event = "DRAIN"  // 配方里的瓶子全部合成完毕
	EventFinish Event = "FINISH" // 所有瓶子达到目标采样次数
	EventFail   Event = "FAIL"
)

// FSM 有限状态机, 跟踪一次运行的调度相位
type FSM struct {
	Current State
	mu      sync.Mutex
	// transitions 定义状态转移表: CurrentState -> Event -> NextState
	transitions map[State]map[Event]State
	// callbacks 定义状态变更后的回调: State -> func()
	callbacks map[State]func(runID string)
	RunID     string // 关联的运行 ID
}

func NewFSM(runID string) *FSM {
	fsm := &FSM{
		Current:     StateSynthesizing,
		RunID:       runID,
		transitions: make(map[State]map[Event]State),
		callbacks:   make(map[State]func(string)),
	}
	fsm.initTransitions()
	return fsm
}

func (f *FSM) initTransitions() {
	f.addTransition(StateSynthesizing, EventYield, StateYielding)
	f.addTransition(StateSynthesizing, EventDrain, StateDraining)
	f.addTransition(StateSynthesizing, EventFail, StateFailed)

	f.addTransition(StateYielding, EventResume, StateSynthesizing)
	f.addTransition(StateYielding, EventFail, StateFailed)

	f.addTransition(StateDraining, EventFinish, StateCompleted)
	f.addTransition(StateDraining, EventFail, StateFailed)
}

func (f *FSM) addTransition(from State, event Event, to State) {
	if _, ok := f.transitions[from]; !ok {
		f.transitions[from] = make(map[Event]State)
	}
	f.transitions[from][event] = to
}

// RegisterCallback 注册状态进入时的回调
func (f *FSM) RegisterCallback(state State, callback func(runID string)) {
	f.callbacks[state] = callback
}

// Fire 触发事件
func (f *FSM) Fire(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// 查找合法的转移
	nextState, ok := f.transitions[f.Current][event]
	if !ok {
		return fmt.Errorf("invalid transition: cannot fire event %s from state %s", event, f.Current)
	}

	f.Current = nextState

	// 触发回调
	// 同步执行, 回调中不要再调用 Fire
	if cb, exists := f.callbacks[nextState]; exists {
		cb(f.RunID)
	}

	return nil
}

// State 返回当前相位 (加锁读取)
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Current
}
