package scanner

import "strings"

// Unbounded 表示不限制最大深度
const Unbounded = -1

// PruneFunc 返回 true 时跳过该条目，目录下的内容也不会被遍历
type PruneFunc func(*Entry) bool

// Policy 单个 Walker 的遍历策略，创建时复制，遍历期间不变
type Policy struct {
	// 跟随指向目录的符号链接
	FollowLinks bool
	// 小于该深度的条目不输出，根目录深度为 0
	MinDepth int
	// 不进入超过该深度的目录，Unbounded (-1) 表示不限制
	MaxDepth int
	// 同时打开的目录句柄上限，小于 1 时按 1 处理
	MaxOpen int
	// 跳过与根目录不在同一设备上的目录
	SameFileSystem bool
	// 对根目录以外的每个条目调用，为 nil 时不剪枝
	Prune PruneFunc
}

// DefaultPolicy 默认策略：不限深度、32 个句柄、跳过隐藏条目
func DefaultPolicy() Policy {
	return Policy{
		MaxDepth: Unbounded,
		MaxOpen:  32,
		Prune:    IsHidden,
	}
}

// IsHidden 名称以 . 开头的条目
func IsHidden(e *Entry) bool {
	return strings.HasPrefix(e.Name, ".")
}

func (p Policy) normalize() Policy {
	if p.MaxOpen < 1 {
		p.MaxOpen = 1
	}
	if p.MinDepth < 0 {
		p.MinDepth = 0
	}
	if p.MaxDepth < 0 {
		p.MaxDepth = Unbounded
	}
	return p
}

// descends 该深度的目录是否还能向下遍历
func (p Policy) descends(depth int) bool {
	return p.MaxDepth == Unbounded || depth < p.MaxDepth
}

func (p Policy) yields(depth int) bool {
	return depth >= p.MinDepth
}
