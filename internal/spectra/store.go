package spectra

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"spectral-workcell/internal/types"

	"gopkg.in/yaml.v3"
)

// Meta 是每个样品瓶时间序列文件的元数据头
// 以 "# " 前缀的 YAML 块写在表格之前，便于人读也便于脚本剥离后解析
type Meta struct {
	RunID                 string `yaml:"run_id"`
	Operator              string `yaml:"operator,omitempty"`
	Slot                  int    `yaml:"slot"`
	Well                  string `yaml:"well"`
	Pixels                int    `yaml:"pixels"`
	IntegrationTimeMicros int    `yaml:"integration_time_us"`
	DarkID                string `yaml:"dark_id"`
	WhiteID               string `yaml:"white_id"`
	WavelengthUnit        string `yaml:"wavelength_unit"`
	AbsorbanceUnit        string `yaml:"absorbance_unit"`
}

// Store 管理一次运行的全部光谱时间序列文件
// 每个样品瓶一个文件: <base>/<runID>/slotN_WELL.csv，
// 表格以波长为索引，每次采样追加一个 "<t> min" 列
type Store struct {
	baseDir string
	runDir  string
	runID   string
}

// NewStore 创建（或打开）某次运行的数据目录
func NewStore(baseDir, runID string) (*Store, error) {
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("无法创建光谱数据目录: %w", err)
	}
	return &Store{baseDir: baseDir, runDir: runDir, runID: runID}, nil
}

// RunID 返回本次运行的 ID
func (s *Store) RunID() string { return s.runID }

// Path 返回某个样品瓶的时间序列文件路径
func (s *Store) Path(ref types.VialRef) string {
	return filepath.Join(s.runDir, fmt.Sprintf("slot%d_%s.csv", ref.Slot, ref.Well))
}

// Append 为一个样品瓶追加一个时间列
// 文件不存在时先写元数据头；已存在时保持原头不动，只重写表格体
func (s *Store) Append(ref types.VialRef, elapsedMin float64, wl, absorbance []float64, meta Meta) error {
	if len(wl) != len(absorbance) {
		return fmt.Errorf("波长轴与吸光度长度不一致: %d vs %d", len(wl), len(absorbance))
	}
	path := s.Path(ref)
	colName := fmt.Sprintf("%g min", elapsedMin)

	header, cols, rows, err := s.readExisting(path)
	if err != nil {
		return err
	}
	if header == nil {
		meta.RunID = s.runID
		header, err = yamlHeader(meta)
		if err != nil {
			return err
		}
		cols = []string{"wavelength_nm"}
		rows = make([][]string, len(wl))
		for i, w := range wl {
			rows[i] = []string{strconv.FormatFloat(w, 'f', 1, 64)}
		}
	}
	if len(rows) != len(wl) {
		return fmt.Errorf("波长轴与已有文件不一致: %d vs %d 行", len(wl), len(rows))
	}

	cols = append(cols, colName)
	for i := range rows {
		rows[i] = append(rows[i], strconv.FormatFloat(absorbance[i], 'f', 6, 64))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("写入光谱文件失败: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(strings.Join(header, "\n") + "\n"); err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(cols); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Columns 返回某个样品瓶已有的时间列名，测试与完成性检查用
func (s *Store) Columns(ref types.VialRef) ([]string, error) {
	_, cols, _, err := s.readExisting(s.Path(ref))
	if err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, nil
	}
	return cols[1:], nil
}

// readExisting 读出已有文件的头块与表格；文件不存在时全部返回 nil
func (s *Store) readExisting(path string) (header []string, cols []string, rows [][]string, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	body := 0
	for body < len(lines) && strings.HasPrefix(lines[body], "#") {
		header = append(header, lines[body])
		body++
	}
	r := csv.NewReader(strings.NewReader(strings.Join(lines[body:], "\n")))
	table, err := r.ReadAll()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("光谱文件 %s 损坏: %w", path, err)
	}
	if len(table) == 0 {
		return header, nil, nil, nil
	}
	return header, table[0], table[1:], nil
}

// ParseHeader 把 "# " 前缀的头块还原为 Meta，离线读取用
func ParseHeader(path string) (Meta, error) {
	var meta Meta
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	var buf strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "#") {
			break
		}
		trimmed := strings.TrimPrefix(strings.TrimPrefix(line, "#"), " ")
		if trimmed == "---" {
			continue
		}
		buf.WriteString(trimmed + "\n")
	}
	if err := yaml.Unmarshal([]byte(buf.String()), &meta); err != nil {
		return meta, fmt.Errorf("解析元数据头失败: %w", err)
	}
	return meta, nil
}

// yamlHeader 把元数据编码为 "# " 前缀的 YAML 块，用 "# ---" 包围
func yamlHeader(meta Meta) ([]string, error) {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, err
	}
	out := []string{"# ---"}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		out = append(out, "# "+line)
	}
	out = append(out, "# ---")
	return out, nil
}
