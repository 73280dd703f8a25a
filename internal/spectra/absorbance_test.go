package spectra

import (
	"math"
	"testing"
)

func TestAbsorbanceKnownValues(t *testing.T) {
	dark := []float64{100, 100, 100}
	white := []float64{1100, 1100, 1100}
	// 透射率分别为 100%, 10%, 1%
	sample := []float64{1100, 200, 110}

	got, err := Absorbance(sample, dark, white)
	if err != nil {
		t.Fatalf("计算吸光度失败: %v", err)
	}
	want := []float64{0, 1, 2}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("像素 %d: 期望吸光度 %.6f, 实际 %.6f", i, want[i], got[i])
		}
	}
}

func TestAbsorbanceClipsRatio(t *testing.T) {
	dark := []float64{100, 100}
	white := []float64{1100, 1100}
	// 样品比白基准还亮 -> 比值 >1 截断为 1 (吸光度 0);
	// 样品比暗基准还暗 -> 比值 <ε 截断为 ε
	sample := []float64{2000, 50}

	got, err := Absorbance(sample, dark, white)
	if err != nil {
		t.Fatalf("计算吸光度失败: %v", err)
	}
	if got[0] != 0 {
		t.Errorf("过亮像素应截断为吸光度 0, 实际 %.6f", got[0])
	}
	if want := -math.Log10(Epsilon); math.Abs(got[1]-want) > 1e-6 {
		t.Errorf("过暗像素应截断为 -log10(ε)=%.2f, 实际 %.6f", want, got[1])
	}
}

func TestAbsorbanceEqualReferencesDoesNotPanic(t *testing.T) {
	// 白基准等于暗基准时分母只剩 ε, 不应除零或返回 NaN
	dark := []float64{100}
	white := []float64{100}
	sample := []float64{100}

	got, err := Absorbance(sample, dark, white)
	if err != nil {
		t.Fatalf("计算吸光度失败: %v", err)
	}
	if math.IsNaN(got[0]) || math.IsInf(got[0], 0) {
		t.Errorf("退化输入不应产生 NaN/Inf, 实际 %v", got[0])
	}
}

func TestAbsorbanceLengthMismatch(t *testing.T) {
	if _, err := Absorbance([]float64{1, 2}, []float64{1}, []float64{1, 2}); err == nil {
		t.Fatal("长度不一致应返回错误")
	}
}
