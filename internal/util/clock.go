package util

import (
	"sync"
	"time"
)

// Clock 抽象了调度层对时间的全部依赖
// 到期轮询是有界的协作式等待而不是错误重试，等待通过 Sleep 显式表达；
// 注入虚拟时钟后测试可以在不真实等待的情况下跑完整个批次
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// WallClock 使用真实的系统时间
type WallClock struct{}

func (WallClock) Now() time.Time        { return time.Now() }
func (WallClock) Sleep(d time.Duration) { time.Sleep(d) }

// VirtualClock 是测试用的虚拟时钟: Sleep 直接推进当前时间
type VirtualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewVirtualClock 创建一个从 start 开始的虚拟时钟
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *VirtualClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Advance 手动推进虚拟时钟
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
