package context_test

import (
	"context"
	"math"
	"sync"

	"github.com/easyops/twinmcp/pkg/core/llm"
)

// fakeLLM 返回固定补全
type fakeLLM struct {
	content string
	err     error

	mu       sync.Mutex
	requests []llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.content}, nil
}

func (f *fakeLLM) CreateEmbeddings(context.Context, string, []string) ([][]float32, error) {
	return nil, nil
}

func (f *fakeLLM) Name() string  { return "fake" }
func (f *fakeLLM) Model() string { return "fake-model" }
func (f *fakeLLM) Close() error  { return nil }

// fakeEmbedder 按文本查表返回向量，未登记的文本返回 [0, 1]
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

// unitWithCosine 返回与 [1, 0] 夹角余弦为 sim 的单位向量
func unitWithCosine(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
