package tool

import "math"

// SimSensor 是确定性的模拟光谱仪，用于演示与测试
// 暗电平为常数，白基准接近满量程，样品谱在峰位处有一个高斯吸收谷
type SimSensor struct {
	Pixels   int
	StartNM  float64
	StepNM   float64
	DarkLvl  float64 // 暗电平计数
	WhiteLvl float64 // 满光计数
	PeakNM   float64 // 吸收峰中心
	PeakAbs  float64 // 峰值吸光度
	Mode     SimSensorMode
}

// SimSensorMode 控制下一次采集返回哪类光谱
type SimSensorMode int

const (
	SimSample SimSensorMode = iota // 带吸收谷的样品谱
	SimDark                        // 光源关闭
	SimWhite                       // 光源开启、无样品
)

// NewSimSensor 创建带默认参数的模拟光谱仪
func NewSimSensor() *SimSensor {
	return &SimSensor{
		Pixels:   64,
		StartNM:  400,
		StepNM:   5,
		DarkLvl:  120,
		WhiteLvl: 3900,
		PeakNM:   520,
		PeakAbs:  0.8,
	}
}

func (s *SimSensor) Wavelengths() []float64 {
	wl := make([]float64, s.Pixels)
	for i := range wl {
		wl[i] = s.StartNM + float64(i)*s.StepNM
	}
	return wl
}

func (s *SimSensor) Intensities() ([]float64, error) {
	out := make([]float64, s.Pixels)
	for i := range out {
		switch s.Mode {
		case SimDark:
			out[i] = s.DarkLvl
		case SimWhite:
			out[i] = s.WhiteLvl
		default:
			wl := s.StartNM + float64(i)*s.StepNM
			a := s.PeakAbs * math.Exp(-((wl-s.PeakNM)*(wl-s.PeakNM))/(2*30*30))
			transmittance := math.Pow(10, -a)
			out[i] = s.DarkLvl + (s.WhiteLvl-s.DarkLvl)*transmittance
		}
	}
	if s.Mode == SimWhite {
		// 白基准读出后光源保持开启, 后续读数回到样品谱
		s.Mode = SimSample
	}
	return out, nil
}

func (s *SimSensor) IntegrationTimeMicros() int { return 10000 }

// SimOperator 包装一个确认端口, 在基准采集的提示点联动切换模拟光源
// 真实硬件上这两步由操作员手动完成
type SimOperator struct {
	Inner  Confirmer
	Sensor *SimSensor
	acks   int
}

func (o *SimOperator) Confirm(prompt string) bool {
	return o.Inner.Confirm(prompt)
}

func (o *SimOperator) Acknowledge(prompt string) {
	o.Inner.Acknowledge(prompt)
	o.acks++
	switch o.acks {
	case 1:
		o.Sensor.Mode = SimDark
	case 2:
		o.Sensor.Mode = SimWhite
	}
}
