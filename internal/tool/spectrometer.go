package tool

import (
	"context"
	"errors"
	"log/slog"

	"spectral-workcell/internal/machine"
	"spectral-workcell/internal/spectra"
	"spectral-workcell/internal/types"
	"spectral-workcell/internal/util"
)

// Sensor 是光谱仪硬件端口
// 驱动与原始强度采集属于外部协作方，核心只消费这三个读数
type Sensor interface {
	Wavelengths() []float64
	Intensities() ([]float64, error)
	IntegrationTimeMicros() int
}

// ErrReferencesNotSet 在基准光谱未就绪时拒绝样品采集
var ErrReferencesNotSet = errors.New("暗/白基准光谱尚未采集")

// Spectrometer 是浸入式光谱探头工具
// 负责探头定位、基准采集、吸光度换算与时间序列落盘
type Spectrometer struct {
	Base
	sensor Sensor
	refs   *spectra.ReferenceStore
	store  *spectra.Store
	clock  util.Clock
}

// NewSpectrometer 创建光谱仪工具
func NewSpectrometer(name string, m machine.Machine, confirm Confirmer, logger *slog.Logger,
	sensor Sensor, refs *spectra.ReferenceStore, store *spectra.Store, clock util.Clock) *Spectrometer {
	return &Spectrometer{
		Base:   NewBase(name, m, confirm, logger),
		sensor: sensor,
		refs:   refs,
		store:  store,
		clock:  clock,
	}
}

// PositionProbe 把探头移动到目标上方并下探到作用深度
func (s *Spectrometer) PositionProbe(ctx context.Context, t Target) error {
	if err := s.requireActive(); err != nil {
		return err
	}
	if err := s.ensureLidState(t.Unit, false); err != nil {
		return err
	}
	return s.moveToTarget(ctx, t)
}

// EnsureReferences 保证基准光谱就绪
// 启动时已从磁盘载入则直接返回；否则做一次交互式两步采集:
// 操作员在两次采集之间切换光源
func (s *Spectrometer) EnsureReferences(ctx context.Context, refTarget Target) error {
	if s.refs.Loaded() {
		return nil
	}
	s.logger.Info("未发现缓存的基准光谱, 开始交互式采集")

	if err := s.PositionProbe(ctx, refTarget); err != nil {
		return err
	}
	s.confirm.Acknowledge("探头已就位, 请关闭探头光源以采集暗基准")
	wl := s.sensor.Wavelengths()
	vals, err := s.sensor.Intensities()
	if err != nil {
		return err
	}
	dark, err := s.refs.SaveDark(wl, vals, s.clock.Now())
	if err != nil {
		return err
	}
	s.logger.Info("暗基准已缓存", "id", dark.ID)

	s.confirm.Acknowledge("请打开探头光源以采集白基准")
	vals, err = s.sensor.Intensities()
	if err != nil {
		return err
	}
	white, err := s.refs.SaveWhite(wl, vals, s.clock.Now())
	if err != nil {
		return err
	}
	s.logger.Info("白基准已缓存", "id", white.ID)
	return nil
}

// Collect 对一个样品瓶采集一次吸光度谱并追加到它的时间序列
// 前置条件: 基准光谱已就绪
func (s *Spectrometer) Collect(ctx context.Context, t Target, ref types.VialRef, elapsedMin float64) ([]float64, []float64, error) {
	if !s.refs.Loaded() {
		return nil, nil, ErrReferencesNotSet
	}
	if err := s.PositionProbe(ctx, t); err != nil {
		return nil, nil, err
	}
	wl := s.sensor.Wavelengths()
	vals, err := s.sensor.Intensities()
	if err != nil {
		return nil, nil, err
	}
	absorbance, err := spectra.Absorbance(vals, s.refs.Dark.Intensities, s.refs.White.Intensities)
	if err != nil {
		return nil, nil, err
	}
	meta := spectra.Meta{
		Slot:                  int(ref.Slot),
		Well:                  string(ref.Well),
		Pixels:                len(wl),
		IntegrationTimeMicros: s.sensor.IntegrationTimeMicros(),
		DarkID:                s.refs.Dark.ID,
		WhiteID:               s.refs.White.ID,
		WavelengthUnit:        "nm",
		AbsorbanceUnit:        "AU",
	}
	if err := s.store.Append(ref, elapsedMin, wl, absorbance, meta); err != nil {
		return nil, nil, err
	}
	return wl, absorbance, nil
}

// WashProbe 在清洗孔位上做 N 次浸洗循环
func (s *Spectrometer) WashProbe(ctx context.Context, wash Target, cycles int) error {
	for i := 0; i < cycles; i++ {
		if err := s.PositionProbe(ctx, wash); err != nil {
			return err
		}
		if err := s.m.SafeZ(ctx); err != nil {
			return err
		}
	}
	return nil
}
