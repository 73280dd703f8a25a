package persistence

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"spectral-workcell/internal/types"
)

// LogEntry 代表运行日志文件中的一条记录
type LogEntry struct {
	Type     string    `json:"type"`               // 记录类型: "VIAL" (瓶子合成完成) 或 "READING" (采样完成)
	Vial     string    `json:"vial"`               // 样品瓶标识, 如 "slot2/B1"
	Readings int       `json:"readings,omitempty"` // 采样后的累计次数 (仅 READING)
	At       time.Time `json:"at"`                 // 记录时刻
}

// RecoveredVial 是恢复出来的单个样品瓶的进度
type RecoveredVial struct {
	Ref      types.VialRef
	Readings int
}

// Journal 实现了简单的追加式运行日志, 用于断电/崩溃后恢复批次进度
type Journal struct {
	file *os.File   // 日志文件句柄
	mu   sync.Mutex // 互斥锁，保证文件写入的原子性
}

// NewJournal 创建或打开一个运行日志文件
func NewJournal(path string) (*Journal, error) {
	// O_APPEND: 追加写入, O_CREATE: 文件不存在则创建, O_RDWR: 读写模式
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &Journal{file: file}, nil
}

// VialCreated 记录一个样品瓶合成完成
func (j *Journal) VialCreated(ref types.VialRef, at time.Time) error {
	return j.append(LogEntry{Type: "VIAL", Vial: ref.String(), At: at})
}

// ReadingTaken 记录一次光谱采样完成
func (j *Journal) ReadingTaken(ref types.VialRef, readings int, at time.Time) error {
	return j.append(LogEntry{Type: "READING", Vial: ref.String(), Readings: readings, At: at})
}

func (j *Journal) append(entry LogEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	// 写入数据并在末尾添加换行符
	_, err = j.file.Write(append(data, '\n'))
	if err != nil {
		return err
	}
	// 确保数据被刷新到磁盘，防止数据丢失
	return j.file.Sync()
}

// Recover 从日志文件中恢复已合成的样品瓶及各自的采样进度
// 在系统启动时调用
func (j *Journal) Recover() (map[string]RecoveredVial, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	// 将文件指针移动到开头以进行读取
	if _, err := j.file.Seek(0, 0); err != nil {
		return nil, err
	}

	recovered := make(map[string]RecoveredVial)

	scanner := bufio.NewScanner(j.file)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// 忽略损坏的行
			continue
		}

		ref, err := types.ParseVialRef(entry.Vial)
		if err != nil {
			continue
		}

		switch entry.Type {
		case "VIAL":
			recovered[entry.Vial] = RecoveredVial{Ref: ref}
		case "READING":
			v := recovered[entry.Vial]
			v.Ref = ref
			// 日志按时间顺序追加, 取最大值以容忍重复行
			if entry.Readings > v.Readings {
				v.Readings = entry.Readings
			}
			recovered[entry.Vial] = v
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// 恢复文件指针到末尾，以便后续追加写入
	if _, err := j.file.Seek(0, os.SEEK_END); err != nil {
		return nil, err
	}

	return recovered, nil
}

// Close 关闭日志文件
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
