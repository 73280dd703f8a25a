package config

import (
	"fmt"
	"strconv"
	"strings"

	"spectral-workcell/internal/types"

	"github.com/spf13/viper"
)

// Config 定义应用程序的配置结构
// 使用 mapstructure 标签来映射配置文件中的字段
type Config struct {
	HTTPAddr             string  `mapstructure:"http_addr"`               // API 和前端服务器监听地址
	SpectraDir           string  `mapstructure:"spectra_dir"`             // 光谱数据根目录
	JournalPath          string  `mapstructure:"journal_path"`            // 运行日志 (journal) 文件路径
	MakeVialEstimateMins float64 `mapstructure:"make_vial_estimate_mins"` // 单瓶合成的估计耗时（分钟），调度让步判据
	YieldPreWindowSecs   int     `mapstructure:"yield_pre_window_secs"`   // 合成期让步采样的到期前置窗口（秒）
	YieldPollSecs        int     `mapstructure:"yield_poll_secs"`         // 合成期到期轮询间隔（秒）
	DrainPreWindowSecs   int     `mapstructure:"drain_pre_window_secs"`   // 收尾期采样的到期前置窗口（秒）
	DrainPollSecs        int     `mapstructure:"drain_poll_secs"`         // 收尾期到期轮询间隔（秒）
	WashCycles           int     `mapstructure:"wash_cycles"`             // 每次采样后探头的清洗次数
	SimMoveDelayMs       int     `mapstructure:"sim_move_delay_ms"`       // 模拟机器的单步运动延时
}

// Load 从 config.yaml 文件加载应用配置
// 使用 Viper 库来读取和解析配置文件
func Load() (*Config, error) {
	viper.SetConfigName("config") // 配置文件名称 (不带扩展名)
	viper.SetConfigType("yaml")   // 配置文件类型
	viper.AddConfigPath(".")      // 查找配置文件的路径 (当前目录)

	// 设置默认值
	viper.SetDefault("http_addr", ":8080")
	viper.SetDefault("spectra_dir", "spectra")
	viper.SetDefault("journal_path", "run.journal")
	viper.SetDefault("make_vial_estimate_mins", 3)
	viper.SetDefault("yield_pre_window_secs", 10)
	viper.SetDefault("yield_poll_secs", 1)
	viper.SetDefault("drain_pre_window_secs", 10)
	viper.SetDefault("drain_poll_secs", 10)
	viper.SetDefault("wash_cycles", 3)
	viper.SetDefault("sim_move_delay_ms", 0)

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 将配置解析到结构体中
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &cfg, nil
}

// LoadRecipe 从指定路径加载配方文件 (JSON 或 YAML)
// 全局字段之外，所有 "slotN" 键各自映射 孔位 -> 配比
func LoadRecipe(path string) (*types.Recipe, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配方文件失败: %w", err)
	}

	recipe := &types.Recipe{
		SpectrumRecordIntervalMins: v.GetFloat64("spectrum_record_interval_mins"),
		MaxSpectrumRecords:         v.GetInt("max_spectrum_records"),
		Slots:                      make(map[types.SlotID]map[types.WellID]types.VialSpec),
	}

	for key := range v.AllSettings() {
		key = strings.ToLower(strings.TrimSpace(key))
		if !strings.HasPrefix(key, "slot") {
			continue
		}
		slotNum, err := strconv.Atoi(strings.TrimPrefix(key, "slot"))
		if err != nil {
			return nil, &types.ConfigurationError{Reason: fmt.Sprintf("无法解析插槽键 %q", key)}
		}

		raw := make(map[string]types.VialSpec)
		if err := v.UnmarshalKey(key, &raw); err != nil {
			return nil, fmt.Errorf("解析插槽 %q 失败: %w", key, err)
		}

		wells := make(map[types.WellID]types.VialSpec, len(raw))
		for id, spec := range raw {
			// *** Viper 将 key 转换为小写，孔位编号需要还原为大写 ***
			wells[types.WellID(strings.ToUpper(id))] = spec
		}
		recipe.Slots[types.SlotID(slotNum)] = wells
	}

	return recipe, nil
}

// ValidateRecipe 在任何硬件运动之前检查配方的前置条件
// 采样间隔必须大于单瓶合成的估计耗时，否则合成期永远追不上采样排程
func ValidateRecipe(r *types.Recipe, makeVialEstimateMins float64) error {
	if r.SpectrumRecordIntervalMins <= makeVialEstimateMins {
		return &types.ConfigurationError{
			Reason: fmt.Sprintf("spectrum_record_interval_mins (%.1f) 必须大于单瓶合成估计耗时 (%.1f)",
				r.SpectrumRecordIntervalMins, makeVialEstimateMins),
		}
	}
	if r.MaxSpectrumRecords < 1 {
		return &types.ConfigurationError{Reason: "max_spectrum_records 必须至少为 1"}
	}
	if len(r.Slots) == 0 {
		return &types.ConfigurationError{Reason: "配方中没有任何插槽"}
	}
	for slot, wells := range r.Slots {
		for id, spec := range wells {
			if spec.MetalPrecursorVol < 0 || spec.OrganicPrecursorVol < 0 || spec.SolventVol < 0 {
				return &types.ConfigurationError{
					Reason: fmt.Sprintf("slot%d/%s 含有负的配比体积", slot, id),
				}
			}
		}
	}
	return nil
}
