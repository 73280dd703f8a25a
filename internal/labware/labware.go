package labware

import (
	"fmt"

	"spectral-workcell/internal/types"
)

// Coord 是台面坐标系中的一个三维点 (mm)
// 坐标系标定与三点校准属于外部协作方，核心只消费解析后的坐标
type Coord struct {
	X, Y, Z float64
}

// Well 表示载架上的一个孔位
// 储液槽孔位自带液量簿记；样品孔位的液量由台账统一持有，这里只提供几何
type Well struct {
	ID       types.WellID
	Pos      Coord   // 孔位顶面中心的绝对坐标
	Depth    float64 // 孔深 (mm)
	Capacity float64 // 总容量 (ml)
	Volume   float64 // 当前液量 (ml)，仅储液槽使用
	parent   *Labware
}

// Top 返回孔位顶面坐标加竖直偏置后的作用点 ("top minus N")
func (w *Well) Top(bias float64) Coord {
	return Coord{X: w.Pos.X, Y: w.Pos.Y, Z: w.Pos.Z + bias}
}

// Unit 返回孔位所属的载架
func (w *Well) Unit() *Labware { return w.parent }

// CurrentVolume 实现液量检查端口
func (w *Well) CurrentVolume() float64 { return w.Volume }

// TotalCapacity 实现液量检查端口
func (w *Well) TotalCapacity() float64 { return w.Capacity }

// SetVolume 实现液量检查端口
func (w *Well) SetVolume(v float64) { w.Volume = v }

// Labware 表示台面上的一个载架单元（样品架、储液槽、盖子停放位）
type Labware struct {
	Name        string
	Slot        types.SlotID
	HasLidOnTop bool // 保护盖当前是否在载架上，决定工具能否接近
	wells       map[types.WellID]*Well
	order       []types.WellID
}

// New 在 origin 处创建一个 rows x cols 的载架，孔位按行主序命名 (A1, A2, ...)
func New(name string, slot types.SlotID, origin Coord, rows, cols int, pitch, depth, capacity float64, hasLid bool) *Labware {
	l := &Labware{
		Name:        name,
		Slot:        slot,
		HasLidOnTop: hasLid,
		wells:       make(map[types.WellID]*Well, rows*cols),
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			id := types.WellID(fmt.Sprintf("%c%d", 'A'+r, c+1))
			l.wells[id] = &Well{
				ID:       id,
				Pos:      Coord{X: origin.X + float64(c)*pitch, Y: origin.Y + float64(r)*pitch, Z: origin.Z},
				Depth:    depth,
				Capacity: capacity,
				parent:   l,
			}
			l.order = append(l.order, id)
		}
	}
	return l
}

func (l *Labware) String() string {
	return fmt.Sprintf("%s@slot%d", l.Name, l.Slot)
}

// Well 按编号解析孔位
func (l *Labware) Well(id types.WellID) (*Well, error) {
	w, ok := l.wells[id]
	if !ok {
		return nil, fmt.Errorf("载架 %s 上不存在孔位 %s", l, id)
	}
	return w, nil
}

// MustWell 按编号解析孔位，不存在时 panic；仅限台面装配阶段使用
func (l *Labware) MustWell(id types.WellID) *Well {
	w, err := l.Well(id)
	if err != nil {
		panic(err)
	}
	return w
}

// Wells 返回行主序的全部孔位
func (l *Labware) Wells() []*Well {
	out := make([]*Well, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.wells[id])
	}
	return out
}
