package tool

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirmer 是操作员确认端口
// 可覆盖错误与参考光谱采集都要阻塞等待操作员，无头/测试环境注入脚本化实现
type Confirmer interface {
	// Confirm 询问是否覆盖继续，返回操作员的选择
	Confirm(prompt string) bool
	// Acknowledge 提示操作员完成某个动作后按键继续（e.g. 切换光源）
	Acknowledge(prompt string)
}

// StdinConfirmer 通过标准输入输出与操作员交互
type StdinConfirmer struct {
	In  io.Reader
	Out io.Writer
}

func (c *StdinConfirmer) Confirm(prompt string) bool {
	fmt.Fprintf(c.Out, "%s\n是否覆盖继续? (y/n): ", prompt)
	r := bufio.NewReader(c.In)
	line, err := r.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (c *StdinConfirmer) Acknowledge(prompt string) {
	fmt.Fprintf(c.Out, "%s\n按回车继续: ", prompt)
	bufio.NewReader(c.In).ReadString('\n')
}

// ScriptedConfirmer 按预置答案应答，测试用
type ScriptedConfirmer struct {
	Answers []bool // Confirm 依次弹出的答案；耗尽后返回 Default
	Default bool
	next    int
	Asked   []string // 记录收到过的全部提示
}

func (c *ScriptedConfirmer) Confirm(prompt string) bool {
	c.Asked = append(c.Asked, prompt)
	if c.next < len(c.Answers) {
		a := c.Answers[c.next]
		c.next++
		return a
	}
	return c.Default
}

func (c *ScriptedConfirmer) Acknowledge(prompt string) {
	c.Asked = append(c.Asked, prompt)
}
