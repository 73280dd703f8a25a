package types

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// SlotID 定义台面插槽编号
// 样品载架按插槽编号寻址，与配方文件中的 "slotN" 键对应
type SlotID int

// WellID 定义载架内孔位编号 (e.g. "A1", "B3")
type WellID string

// VialRef 唯一标识一个物理样品瓶: (插槽, 孔位)
// 所有工具的几何视图最终都解析到同一个 VialRef 对应的台账条目
type VialRef struct {
	Slot SlotID // 插槽编号
	Well WellID // 孔位编号
}

func (r VialRef) String() string {
	return fmt.Sprintf("slot%d/%s", r.Slot, r.Well)
}

// ParseVialRef 解析 "slot2/B1" 形式的瓶子标识
// 与 String 互逆, 供运行日志恢复时使用
func ParseVialRef(s string) (VialRef, error) {
	var slot int
	var well string
	if _, err := fmt.Sscanf(s, "slot%d/%s", &slot, &well); err != nil {
		return VialRef{}, fmt.Errorf("invalid vial ref %q: %w", s, err)
	}
	return VialRef{Slot: SlotID(slot), Well: WellID(well)}, nil
}

// VialSpec 定义配方中单个样品瓶的配比
// 体积单位均为毫升
type VialSpec struct {
	MetalPrecursorVol   float64 `mapstructure:"metal_precursor_vol"`   // 金属前驱体体积
	OrganicPrecursorVol float64 `mapstructure:"organic_precursor_vol"` // 有机前驱体体积
	SolventVol          float64 `mapstructure:"solvent_vol"`           // 溶剂体积
	Rule                string  `mapstructure:"rule,omitempty"`        // 是否合成该瓶的规则表达式 (expr 语法)，为空则默认合成
}

// TotalVol 返回该瓶的总配比体积
func (s VialSpec) TotalVol() float64 {
	return s.MetalPrecursorVol + s.OrganicPrecursorVol + s.SolventVol
}

// Recipe 定义一次批量合成实验的完整声明
type Recipe struct {
	SpectrumRecordIntervalMins float64                        // 相邻两次光谱采样的间隔（分钟）
	MaxSpectrumRecords         int                            // 每个样品瓶的目标采样次数
	Slots                      map[SlotID]map[WellID]VialSpec // 各插槽内的样品瓶配比
}

// Interval 返回采样间隔对应的 time.Duration
func (r *Recipe) Interval() time.Duration {
	return time.Duration(r.SpectrumRecordIntervalMins * float64(time.Minute))
}

// OrderedSlots 返回按编号升序排列的插槽列表
// 该顺序同时也是排产顺序与近期采样扫描的决胜顺序
func (r *Recipe) OrderedSlots() []SlotID {
	slots := make([]SlotID, 0, len(r.Slots))
	for s := range r.Slots {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// OrderedWells 返回某插槽内按行主序排列的孔位列表 (A1, A2, ..., B1, ...)
func (r *Recipe) OrderedWells(slot SlotID) []WellID {
	wells := make([]WellID, 0, len(r.Slots[slot]))
	for w := range r.Slots[slot] {
		wells = append(wells, w)
	}
	sort.Slice(wells, func(i, j int) bool { return LessWell(wells[i], wells[j]) })
	return wells
}

// VialCount 返回配方中样品瓶的总数
func (r *Recipe) VialCount() int {
	n := 0
	for _, wells := range r.Slots {
		n += len(wells)
	}
	return n
}

// LessWell 按行主序比较两个孔位: 先比较行字母，再比较数字列号
// "A2" < "A10"，避免纯字符串比较的字典序陷阱
func LessWell(a, b WellID) bool {
	ra, ca := splitWell(a)
	rb, cb := splitWell(b)
	if ra != rb {
		return ra < rb
	}
	return ca < cb
}

func splitWell(id WellID) (string, int) {
	s := string(id)
	i := 0
	for i < len(s) && (s[i] < '0' || s[i] > '9') {
		i++
	}
	col, _ := strconv.Atoi(s[i:])
	return s[:i], col
}
