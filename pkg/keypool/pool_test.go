package keypool

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRoundRobin(t *testing.T) {
	p := New("k1", "k2", "k3")
	require.Equal(t, 3, p.Size())

	// 连续取整数圈，每圈内每个 key 恰好出现一次
	for cycle := 0; cycle < 3; cycle++ {
		for _, want := range []string{"k1", "k2", "k3"} {
			got, ok := p.Next()
			require.True(t, ok)
			assert.Equal(t, want, got)
		}
	}
}

func TestNextEmptyPool(t *testing.T) {
	p := New()
	_, ok := p.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, p.Size())
}

func TestNewDeduplicates(t *testing.T) {
	p := New("a", "b", "a", " b ", "c")
	require.Equal(t, 3, p.Size())

	got := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		k, _ := p.Next()
		got = append(got, k)
	}
	// 去重后保持首次出现的顺序
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestNewStripsBearerPrefix(t *testing.T) {
	p := New("Bearer sk-123", "bearer sk-456")
	k1, _ := p.Next()
	k2, _ := p.Next()
	assert.Equal(t, "sk-123", k1)
	assert.Equal(t, "sk-456", k2)
}

func TestNextConcurrent(t *testing.T) {
	const keys = 5
	const callers = 20
	const callsPerCaller = 50 // callers*callsPerCaller 是池大小的整数倍

	names := make([]string, keys)
	for i := range names {
		names[i] = fmt.Sprintf("key-%d", i)
	}
	p := New(names...)

	var mu sync.Mutex
	counts := make(map[string]int)

	var wg sync.WaitGroup
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < callsPerCaller; i++ {
				k, ok := p.Next()
				if !ok {
					t.Error("pool unexpectedly empty")
					return
				}
				mu.Lock()
				counts[k]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 总调用数是池大小的整数倍，轮询之下每个 key 被取到的次数完全相同
	want := callers * callsPerCaller / keys
	require.Len(t, counts, keys)
	for name, n := range counts {
		assert.Equalf(t, want, n, "key %s", name)
	}
}

func TestFromEnvMergesSources(t *testing.T) {
	env := map[string]string{
		"GEMINI_API_KEY":    "primary",
		"GEMINI_API_KEYS":   "bulk-a, bulk-b\nbulk-c",
		"GEMINI_API_KEY_1":  "numbered-1",
		"GEMINI_API_KEY_2":  "primary", // 与主变量重复，应被去重
		"GEMINI_API_KEY_20": "numbered-20",
		"GEMINI_API_KEY_21": "out-of-range",
	}
	p := FromEnv(func(k string) string { return env[k] }, "GEMINI_API_KEY")

	require.Equal(t, 6, p.Size())
	got := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		k, _ := p.Next()
		got = append(got, k)
	}
	assert.Equal(t, []string{"primary", "bulk-a", "bulk-b", "bulk-c", "numbered-1", "numbered-20"}, got)
}

func TestFromEnvEmpty(t *testing.T) {
	p := FromEnv(func(string) string { return "" }, "OPENAI_API_KEY")
	assert.Equal(t, 0, p.Size())
}
