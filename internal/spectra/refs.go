package spectra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Reference 是一条缓存的基准光谱（暗/白）
type Reference struct {
	ID          string    `json:"id"`
	CapturedAt  time.Time `json:"captured_at"`
	Wavelengths []float64 `json:"wavelengths"`
	Intensities []float64 `json:"intensities"`
}

// ReferenceStore 持久化基准光谱并在启动时自动载入最新的一对
// 文件名携带时间戳 ID (dark_20060102_150405.json)，最新的一对优先
type ReferenceStore struct {
	dir   string
	Dark  *Reference
	White *Reference
}

// NewReferenceStore 打开基准光谱目录并尝试载入已有的基准
func NewReferenceStore(dir string) (*ReferenceStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("无法创建基准光谱目录: %w", err)
	}
	rs := &ReferenceStore{dir: dir}
	if err := rs.loadLatest(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Loaded 判断暗/白基准是否都已就绪
func (rs *ReferenceStore) Loaded() bool {
	return rs.Dark != nil && rs.White != nil
}

// SaveDark 缓存一条新的暗基准并落盘
func (rs *ReferenceStore) SaveDark(wl, vals []float64, at time.Time) (*Reference, error) {
	ref, err := rs.save("dark", wl, vals, at)
	if err != nil {
		return nil, err
	}
	rs.Dark = ref
	return ref, nil
}

// SaveWhite 缓存一条新的白基准并落盘
func (rs *ReferenceStore) SaveWhite(wl, vals []float64, at time.Time) (*Reference, error) {
	ref, err := rs.save("white", wl, vals, at)
	if err != nil {
		return nil, err
	}
	rs.White = ref
	return ref, nil
}

func (rs *ReferenceStore) save(prefix string, wl, vals []float64, at time.Time) (*Reference, error) {
	ref := &Reference{
		ID:          fmt.Sprintf("%s_%s", prefix, at.Format("20060102_150405")),
		CapturedAt:  at,
		Wavelengths: wl,
		Intensities: vals,
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(rs.dir, ref.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("写入基准光谱失败: %w", err)
	}
	return ref, nil
}

// loadLatest 载入目录中最新的 dark/white 基准对（如存在）
func (rs *ReferenceStore) loadLatest() error {
	dark, err := rs.latest("dark")
	if err != nil {
		return err
	}
	white, err := rs.latest("white")
	if err != nil {
		return err
	}
	if dark == nil || white == nil {
		return nil
	}
	rs.Dark, rs.White = dark, white
	return nil
}

func (rs *ReferenceStore) latest(prefix string) (*Reference, error) {
	matches, err := filepath.Glob(filepath.Join(rs.dir, prefix+"_*.json"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Strings(matches) // 时间戳命名, 字典序即时间序
	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		return nil, err
	}
	var ref Reference
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("基准光谱 %s 损坏: %w", matches[len(matches)-1], err)
	}
	if ref.ID == "" {
		ref.ID = strings.TrimSuffix(filepath.Base(matches[len(matches)-1]), ".json")
	}
	return &ref, nil
}
