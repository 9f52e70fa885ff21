package otel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Metrics 按名称取得指标仪器，同名多次获取返回同一序列
type Metrics interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// Counter 单调递增计数
type Counter interface {
	Add(ctx context.Context, value int64, attrs ...Attr)
}

// Histogram 记录分布，如批次耗时和质量分
type Histogram interface {
	Record(ctx context.Context, value float64, attrs ...Attr)
}

// Gauge 记录瞬时值，如限速窗口内的在途请求数
type Gauge interface {
	Set(ctx context.Context, value float64, attrs ...Attr)
}

// Attr 指标属性，例如 model=text-embedding-3-small
type Attr struct {
	Key   string
	Value any
}

// NewAttr 创建指标属性
func NewAttr(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// seriesKey 把属性按键排序后拼成 k=v,k=v，作为序列标识
func seriesKey(attrs []Attr) string {
	if len(attrs) == 0 {
		return ""
	}
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = fmt.Sprintf("%s=%v", a.Key, a.Value)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// InMemoryMetrics 在内存中按 名称+属性 分序列记录指标，测试中用来断言
type InMemoryMetrics struct {
	mu      sync.RWMutex
	counts  map[string]map[string]int64
	samples map[string][]float64
	levels  map[string]map[string]float64
}

// NewInMemoryMetrics 创建内存指标
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counts:  make(map[string]map[string]int64),
		samples: make(map[string][]float64),
		levels:  make(map[string]map[string]float64),
	}
}

func (m *InMemoryMetrics) Counter(name string) Counter     { return memCounter{m: m, name: name} }
func (m *InMemoryMetrics) Histogram(name string) Histogram { return memHistogram{m: m, name: name} }
func (m *InMemoryMetrics) Gauge(name string) Gauge         { return memGauge{m: m, name: name} }

// CounterTotal 返回计数器在所有属性组合上的总和
func (m *InMemoryMetrics) CounterTotal(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, v := range m.counts[name] {
		total += v
	}
	return total
}

// CounterValue 返回指定属性组合的计数，属性顺序无关
func (m *InMemoryMetrics) CounterValue(name string, attrs ...Attr) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[name][seriesKey(attrs)]
}

// HistogramValues 按记录顺序返回直方图的全部样本
func (m *InMemoryMetrics) HistogramValues(name string) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]float64(nil), m.samples[name]...)
}

// GaugeValue 返回指定属性组合最近一次设置的值
func (m *InMemoryMetrics) GaugeValue(name string, attrs ...Attr) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.levels[name][seriesKey(attrs)]
	return v, ok
}

type memCounter struct {
	m    *InMemoryMetrics
	name string
}

func (c memCounter) Add(_ context.Context, value int64, attrs ...Attr) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()

	series := c.m.counts[c.name]
	if series == nil {
		series = make(map[string]int64)
		c.m.counts[c.name] = series
	}
	series[seriesKey(attrs)] += value
}

type memHistogram struct {
	m    *InMemoryMetrics
	name string
}

func (h memHistogram) Record(_ context.Context, value float64, _ ...Attr) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	h.m.samples[h.name] = append(h.m.samples[h.name], value)
}

type memGauge struct {
	m    *InMemoryMetrics
	name string
}

func (g memGauge) Set(_ context.Context, value float64, attrs ...Attr) {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()

	series := g.m.levels[g.name]
	if series == nil {
		series = make(map[string]float64)
		g.m.levels[g.name] = series
	}
	series[seriesKey(attrs)] = value
}

// NoopMetrics 丢弃所有记录，未启用可观测性时使用
type NoopMetrics struct{}

// NewNoopMetrics 创建空实现指标
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) Counter(string) Counter     { return NoopCounter{} }
func (m *NoopMetrics) Histogram(string) Histogram { return NoopHistogram{} }
func (m *NoopMetrics) Gauge(string) Gauge         { return NoopGauge{} }

type NoopCounter struct{}

func (NoopCounter) Add(context.Context, int64, ...Attr) {}

type NoopHistogram struct{}

func (NoopHistogram) Record(context.Context, float64, ...Attr) {}

type NoopGauge struct{}

func (NoopGauge) Set(context.Context, float64, ...Attr) {}

// compile-time interface check
var (
	_ Metrics = (*InMemoryMetrics)(nil)
	_ Metrics = (*NoopMetrics)(nil)
)
