package labware

import (
	"fmt"

	"spectral-workcell/internal/types"
)

// 台面布局常量: 插槽锚点与载架几何
// 数值来自工作站的标定文件；标定流程本身在核心范围之外
var slotOrigins = map[types.SlotID]Coord{
	1: {X: 20, Y: 25, Z: 95},
	2: {X: 160, Y: 25, Z: 90},
	3: {X: 20, Y: 180, Z: 80},
	4: {X: 160, Y: 180, Z: 60},
	5: {X: 300, Y: 25, Z: 90},
}

const (
	reservoirCapacityML = 100 // 储液槽单孔容量
	vialCapacityML      = 20  // 样品瓶容量
	vialRackRows        = 2
	vialRackCols        = 4
)

// Deck 描述核心消费的整个台面: 储液槽、样品载架与盖子停放位
type Deck struct {
	Precursors *Labware                  // slot1: A1 金属前驱体, A2 有机前驱体（自带保护盖）
	Solvents   *Labware                  // slot3: A1 清洗溶剂, A2 稀释溶剂
	LidPark    *Labware                  // slot4: 真空吸盘的盖子停放位, 按来源插槽编号寻址
	Samples    map[types.SlotID]*Labware // 配方声明的各样品插槽
}

// BuildDeck 根据配方声明的插槽装配台面
func BuildDeck(recipe *types.Recipe) (*Deck, error) {
	d := &Deck{
		Precursors: New("precursors", 1, slotOrigins[1], 1, 2, 30, 80, reservoirCapacityML, true),
		Solvents:   New("solvents", 3, slotOrigins[3], 1, 2, 30, 80, reservoirCapacityML, false),
		LidPark:    New("lid_park", 4, slotOrigins[4], 1, 5, 28, 0, 0, false),
		Samples:    make(map[types.SlotID]*Labware),
	}
	// 储液槽初始装满
	for _, w := range d.Precursors.Wells() {
		w.Volume = w.Capacity
	}
	for _, w := range d.Solvents.Wells() {
		w.Volume = w.Capacity
	}

	reserved := map[types.SlotID]string{1: "precursors", 3: "solvents", 4: "lid_park"}

	for _, slot := range recipe.OrderedSlots() {
		if role, taken := reserved[slot]; taken {
			return nil, &types.ConfigurationError{
				Reason: fmt.Sprintf("recipe sample slot %d is reserved for %s", slot, role),
			}
		}
		origin, ok := slotOrigins[slot]
		if !ok {
			return nil, fmt.Errorf("插槽 %d 没有标定过的台面锚点", slot)
		}
		rack := New(fmt.Sprintf("samples%d", slot), slot, origin, vialRackRows, vialRackCols, 35, 70, vialCapacityML, false)
		for id := range recipe.Slots[slot] {
			if _, err := rack.Well(id); err != nil {
				return nil, fmt.Errorf("配方引用了不存在的孔位: %w", err)
			}
		}
		d.Samples[slot] = rack
	}
	return d, nil
}

// SampleWell 解析一个样品瓶的物理孔位
func (d *Deck) SampleWell(ref types.VialRef) (*Well, error) {
	rack, ok := d.Samples[ref.Slot]
	if !ok {
		return nil, fmt.Errorf("插槽 %d 上没有样品载架", ref.Slot)
	}
	return rack.Well(ref.Well)
}

// ParkWell 返回某个来源插槽对应的盖子停放孔位
func (d *Deck) ParkWell(from types.SlotID) (*Well, error) {
	return d.LidPark.Well(types.WellID(fmt.Sprintf("A%d", from)))
}
