package admin

import "strings"

// Gate 管理员口令门。
// 没有账号体系，知道口令即是管理员；口令校验不区分大小写。
type Gate struct {
	keyword string
}

// NewGate 创建口令门。keyword 为空时管理员模式不可用。
func NewGate(keyword string) *Gate {
	return &Gate{keyword: strings.TrimSpace(keyword)}
}

// Enabled 管理员模式是否可用
func (g *Gate) Enabled() bool {
	return g.keyword != ""
}

// Check 校验口令。
// 已持有管理员标记的浏览器重新校验失败时，调用方应撤销其标记。
func (g *Gate) Check(input string) bool {
	if !g.Enabled() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(input), g.keyword)
}
