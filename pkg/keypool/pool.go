// Package keypool 维护单个 AI 提供商的 API Key 轮换池。
package keypool

import (
	"fmt"
	"strings"
	"sync"
)

// Pool 持有一个提供商的全部 API Key，并以轮询方式分发。
// 池中的 key 集合在创建后不再变化，游标是唯一的可变状态，
// 由互斥锁保护，供并发的响应生成请求共享使用。
type Pool struct {
	mu     sync.Mutex
	keys   []string
	cursor int
}

// New 根据给定的 key 列表创建一个 Pool。
// 重复的 key 只保留第一次出现，顺序保持不变；
// 带有 "Bearer " 标签前缀的值在入池前会被剥离。
func New(keys ...string) *Pool {
	seen := make(map[string]struct{}, len(keys))
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		k = normalize(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		cleaned = append(cleaned, k)
	}
	return &Pool{keys: cleaned}
}

// Next 返回下一个待用的 key。游标的读取与前进在同一个临界区内完成，
// 两个并发调用不会拿到彼此跳过的位置。池为空时返回 false。
func (p *Pool) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", false
	}
	key := p.keys[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.keys)
	return key, true
}

// Size 返回池中不同 key 的数量。
func (p *Pool) Size() int {
	return len(p.keys)
}

// maxNumbered 是编号环境变量（NAME_1 .. NAME_20）的上限。
const maxNumbered = 20

// FromEnv 从环境变量构建一个 Pool。三类变量会被合并：
//   - 单值主变量，如 GEMINI_API_KEY
//   - 批量变量（逗号或换行分隔），如 GEMINI_API_KEYS
//   - 编号变量 GEMINI_API_KEY_1 .. GEMINI_API_KEY_20
//
// getenv 作为参数传入以便测试。
func FromEnv(getenv func(string) string, name string) *Pool {
	var keys []string

	if v := getenv(name); v != "" {
		keys = append(keys, v)
	}

	// 批量变量按逗号和换行两种分隔符切分
	if bulk := getenv(name + "S"); bulk != "" {
		for _, line := range strings.Split(bulk, "\n") {
			for _, part := range strings.Split(line, ",") {
				keys = append(keys, part)
			}
		}
	}

	for i := 1; i <= maxNumbered; i++ {
		if v := getenv(fmt.Sprintf("%s_%d", name, i)); v != "" {
			keys = append(keys, v)
		}
	}

	return New(keys...)
}

// normalize 去除空白并剥离可识别的标签前缀。
func normalize(key string) string {
	key = strings.TrimSpace(key)
	const bearer = "bearer "
	if len(key) > len(bearer) && strings.EqualFold(key[:len(bearer)], bearer) {
		key = strings.TrimSpace(key[len(bearer):])
	}
	return key
}
