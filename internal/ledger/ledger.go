package ledger

import (
	"fmt"
	"time"

	"spectral-workcell/internal/labware"
	"spectral-workcell/internal/types"
	"spectral-workcell/internal/util"
)

// Vial 是台账中的唯一条目: 每个物理样品瓶的液量与采样状态
// 不同工具以不同几何接近同一个瓶，但可变状态只存在这一份
type Vial struct {
	Ref      types.VialRef
	Volume   float64    // 当前液量 (ml)
	Capacity float64    // 总容量 (ml)
	NextDue  *time.Time // 下一次光谱采样的到期时刻，nil 表示未排程
	Readings int        // 已完成的采样次数
}

// CurrentVolume 实现液量检查端口
func (v *Vial) CurrentVolume() float64 { return v.Volume }

// TotalCapacity 实现液量检查端口
func (v *Vial) TotalCapacity() float64 { return v.Capacity }

// SetVolume 实现液量检查端口
func (v *Vial) SetVolume(vol float64) { v.Volume = vol }

// View 是某个工具对样品瓶的几何视图: 一个竖直偏置加上对共享条目的引用
// 视图永远不复制可变字段，通过视图看到的一切变更即时对所有工具可见
type View struct {
	Vial  *Vial
	Well  *labware.Well
	ZBias float64
}

// Approach 返回该视图下工具的作用点坐标
func (v View) Approach() labware.Coord {
	return v.Well.Top(v.ZBias)
}

// Ledger 按 (插槽, 孔位) 持有全部样品瓶条目
// 整个编排是单逻辑线程: 管线与调度器从不并发访问，因此不加锁；
// 别名问题通过 "一个条目、多个只读几何视图" 的结构解决
type Ledger struct {
	interval time.Duration
	clock    util.Clock
	entries  map[types.VialRef]*Vial
	order    []types.VialRef // 创建顺序: 插槽升序、槽内行主序，同时是近期扫描的决胜顺序
}

// New 创建一个空台账
func New(interval time.Duration, clock util.Clock) *Ledger {
	return &Ledger{
		interval: interval,
		clock:    clock,
		entries:  make(map[types.VialRef]*Vial),
	}
}

// Register 在合成开始时创建（或重置）一个条目: 液量 0、未排程、采样数 0
func (l *Ledger) Register(ref types.VialRef, capacity float64) *Vial {
	if v, ok := l.entries[ref]; ok {
		v.Volume = 0
		v.Capacity = capacity
		v.NextDue = nil
		v.Readings = 0
		return v
	}
	v := &Vial{Ref: ref, Capacity: capacity}
	l.entries[ref] = v
	l.order = append(l.order, ref)
	return v
}

// Get 按引用解析条目
func (l *Ledger) Get(ref types.VialRef) (*Vial, error) {
	v, ok := l.entries[ref]
	if !ok {
		return nil, fmt.Errorf("台账中不存在样品瓶 %s", ref)
	}
	return v, nil
}

// UpdateVolume 按增量更新液量；不做范围截断，越界检查由调用方预先完成
func (l *Ledger) UpdateVolume(ref types.VialRef, delta float64, isDispense bool) error {
	v, err := l.Get(ref)
	if err != nil {
		return err
	}
	if isDispense {
		v.Volume += delta
	} else {
		v.Volume -= delta
	}
	return nil
}

// ScheduleNextReading 在合成完成时排程首轮采样: 到期 = now + interval, 采样数归零
func (l *Ledger) ScheduleNextReading(ref types.VialRef) error {
	v, err := l.Get(ref)
	if err != nil {
		return err
	}
	due := l.clock.Now().Add(l.interval)
	v.NextDue = &due
	v.Readings = 0
	return nil
}

// RecordReading 由调度器在每次采样时调用: 采样数加一, 重写到期 = now + interval
// 返回新的采样计数
func (l *Ledger) RecordReading(ref types.VialRef) (int, error) {
	v, err := l.Get(ref)
	if err != nil {
		return 0, err
	}
	v.Readings++
	due := l.clock.Now().Add(l.interval)
	v.NextDue = &due
	return v.Readings, nil
}

// ClearDue 取消一个瓶的后续排程（达到目标采样数之后）
func (l *Ledger) ClearDue(ref types.VialRef) error {
	v, err := l.Get(ref)
	if err != nil {
		return err
	}
	v.NextDue = nil
	return nil
}

// NearestDue 在所有已排程的瓶中返回 (到期时刻 - now) 最小的那个
// 逾期（负裕量）的瓶永远优先于未到期的瓶；扫描覆盖全部插槽。
// 裕量相等时按创建顺序决胜（插槽升序、槽内行主序），比较使用严格小于，
// 因此该顺序是确定的
func (l *Ledger) NearestDue() (*Vial, time.Duration, bool) {
	now := l.clock.Now()
	var best *Vial
	var bestMargin time.Duration
	for _, ref := range l.order {
		v := l.entries[ref]
		if v.NextDue == nil {
			continue
		}
		margin := v.NextDue.Sub(now)
		if best == nil || margin < bestMargin {
			best = v
			bestMargin = margin
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best, bestMargin, true
}

// AllReached 判断是否所有瓶的采样数都达到了目标
func (l *Ledger) AllReached(target int) bool {
	if len(l.entries) == 0 {
		return false
	}
	for _, v := range l.entries {
		if v.Readings < target {
			return false
		}
	}
	return true
}

// Vials 返回创建顺序的全部条目
func (l *Ledger) Vials() []*Vial {
	out := make([]*Vial, 0, len(l.order))
	for _, ref := range l.order {
		out = append(out, l.entries[ref])
	}
	return out
}
