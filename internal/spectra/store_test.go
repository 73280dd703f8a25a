package spectra

import (
	"os"
	"strings"
	"testing"
	"time"

	"spectral-workcell/internal/types"
)

func testMeta() Meta {
	return Meta{
		Slot:                  2,
		Well:                  "B1",
		Pixels:                3,
		IntegrationTimeMicros: 10000,
		DarkID:                "dark_20260301_090000",
		WhiteID:               "white_20260301_090100",
		WavelengthUnit:        "nm",
		AbsorbanceUnit:        "AU",
	}
}

func TestStoreAppendGrowsTimeColumns(t *testing.T) {
	store, err := NewStore(t.TempDir(), "20260301_090000")
	if err != nil {
		t.Fatalf("创建数据目录失败: %v", err)
	}
	ref := types.VialRef{Slot: 2, Well: "B1"}
	wl := []float64{400, 405, 410}

	for i, elapsed := range []float64{0, 6, 12} {
		abs := []float64{0.1 * float64(i), 0.2, 0.3}
		if err := store.Append(ref, elapsed, wl, abs, testMeta()); err != nil {
			t.Fatalf("第 %d 次追加失败: %v", i+1, err)
		}
	}

	cols, err := store.Columns(ref)
	if err != nil {
		t.Fatalf("读取列名失败: %v", err)
	}
	want := []string{"0 min", "6 min", "12 min"}
	if len(cols) != len(want) {
		t.Fatalf("期望 %d 个时间列, 实际 %d: %v", len(want), len(cols), cols)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("列 %d: 期望 %q, 实际 %q", i, want[i], cols[i])
		}
	}
}

func TestStoreHeaderSurvivesAppends(t *testing.T) {
	store, err := NewStore(t.TempDir(), "20260301_090000")
	if err != nil {
		t.Fatalf("创建数据目录失败: %v", err)
	}
	ref := types.VialRef{Slot: 2, Well: "B1"}
	wl := []float64{400, 405, 410}
	abs := []float64{0.1, 0.2, 0.3}

	if err := store.Append(ref, 0, wl, abs, testMeta()); err != nil {
		t.Fatalf("首次追加失败: %v", err)
	}
	if err := store.Append(ref, 6, wl, abs, testMeta()); err != nil {
		t.Fatalf("二次追加失败: %v", err)
	}

	data, err := os.ReadFile(store.Path(ref))
	if err != nil {
		t.Fatalf("读取文件失败: %v", err)
	}
	if !strings.HasPrefix(string(data), "# ---") {
		t.Fatal("文件应以 \"# ---\" 头块开始")
	}

	meta, err := ParseHeader(store.Path(ref))
	if err != nil {
		t.Fatalf("解析元数据头失败: %v", err)
	}
	if meta.RunID != "20260301_090000" {
		t.Errorf("run_id 应为 20260301_090000, 实际 %q", meta.RunID)
	}
	if meta.Slot != 2 || meta.Well != "B1" {
		t.Errorf("元数据位置信息错误: slot=%d well=%q", meta.Slot, meta.Well)
	}
}

func TestStoreRejectsMismatchedWavelengthAxis(t *testing.T) {
	store, err := NewStore(t.TempDir(), "20260301_090000")
	if err != nil {
		t.Fatalf("创建数据目录失败: %v", err)
	}
	ref := types.VialRef{Slot: 2, Well: "B1"}

	if err := store.Append(ref, 0, []float64{400, 405, 410}, []float64{0.1, 0.2, 0.3}, testMeta()); err != nil {
		t.Fatalf("首次追加失败: %v", err)
	}
	if err := store.Append(ref, 6, []float64{400, 405}, []float64{0.1, 0.2}, testMeta()); err == nil {
		t.Fatal("波长轴长度变化应被拒绝")
	}
}

func TestReferenceStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rs, err := NewReferenceStore(dir)
	if err != nil {
		t.Fatalf("创建基准目录失败: %v", err)
	}
	if rs.Loaded() {
		t.Fatal("空目录不应报告基准就绪")
	}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	wl := []float64{400, 405}
	if _, err := rs.SaveDark(wl, []float64{120, 121}, at); err != nil {
		t.Fatalf("保存暗基准失败: %v", err)
	}
	if _, err := rs.SaveWhite(wl, []float64{3900, 3901}, at.Add(time.Minute)); err != nil {
		t.Fatalf("保存白基准失败: %v", err)
	}
	if !rs.Loaded() {
		t.Fatal("保存后基准应就绪")
	}

	// 重新打开目录应自动载入最新的一对
	rs2, err := NewReferenceStore(dir)
	if err != nil {
		t.Fatalf("重新打开基准目录失败: %v", err)
	}
	if !rs2.Loaded() {
		t.Fatal("重启后应自动载入缓存的基准")
	}
	if rs2.Dark.ID != "dark_20260301_090000" {
		t.Errorf("暗基准 ID 错误: %q", rs2.Dark.ID)
	}
	if rs2.White.Intensities[0] != 3900 {
		t.Errorf("白基准数据错误: %v", rs2.White.Intensities)
	}
}
