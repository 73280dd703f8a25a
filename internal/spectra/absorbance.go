package spectra

import (
	"fmt"
	"math"
)

// Epsilon 同时守卫除零与对数定义域: 比值被截断在 [Epsilon, 1] 内
const Epsilon = 1e-9

// Absorbance 由原始强度计算吸光度谱
// A(λ) = -log10( clip( (I_sample - I_dark) / (I_white - I_dark + ε), ε, 1 ) )
func Absorbance(sample, dark, white []float64) ([]float64, error) {
	if len(sample) != len(dark) || len(sample) != len(white) {
		return nil, fmt.Errorf("光谱长度不一致: sample=%d dark=%d white=%d", len(sample), len(dark), len(white))
	}
	out := make([]float64, len(sample))
	for i := range sample {
		ratio := (sample[i] - dark[i]) / (white[i] - dark[i] + Epsilon)
		if ratio < Epsilon {
			ratio = Epsilon
		}
		if ratio > 1 {
			ratio = 1
		}
		out[i] = -math.Log10(ratio)
	}
	return out, nil
}
