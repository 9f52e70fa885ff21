package context

import (
	"time"

	"github.com/easyops/twinmcp/pkg/core/config"
)

// Scorer 定义对单个条目评分的接口。
type Scorer interface {
	// Score 返回 0.0-1.0 的分数。
	Score(item *Item) float64
}

// RelevanceScorer 直接使用条目自带的相关度。
type RelevanceScorer struct{}

// Score 返回截断到 [0, 1] 的相关度。
func (RelevanceScorer) Score(item *Item) float64 {
	return clamp01(item.RelevanceScore)
}

// RecencyScorer 按条目年龄分档评分。
type RecencyScorer struct {
	now func() time.Time
}

// NewRecencyScorer 创建新近度评分器；now 为 nil 时使用 time.Now。
func NewRecencyScorer(now func() time.Time) *RecencyScorer {
	if now == nil {
		now = time.Now
	}
	return &RecencyScorer{now: now}
}

// Score 一天内 1.0，一周内 0.8，30 天内 0.6，更早 0.4，没有时间戳 0.5。
func (s *RecencyScorer) Score(item *Item) float64 {
	ts, ok := item.Timestamp()
	if !ok {
		return 0.5
	}

	age := s.now().Sub(ts)
	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 7*24*time.Hour:
		return 0.8
	case age < 30*24*time.Hour:
		return 0.6
	default:
		return 0.4
	}
}

// TypeScorer 使用类型先验。
type TypeScorer struct{}

// Score 返回 ItemType.Affinity。
func (TypeScorer) Score(item *Item) float64 {
	return item.Type.Affinity()
}

// DiversityScorer 评估条目相对全部候选的多样性。
type DiversityScorer interface {
	Diversity(item *Item, candidates []*Item) float64
}

// DefaultDiversity 是默认的常量多样性分数。
const DefaultDiversity = 0.7

// ConstantDiversity 对所有条目返回同一分数。
type ConstantDiversity float64

// Diversity 返回常量。
func (c ConstantDiversity) Diversity(*Item, []*Item) float64 {
	return float64(c)
}

// CompositeScorer 按权重组合相关度、新近度、类型和多样性。
type CompositeScorer struct {
	weights   config.ScoringWeights
	relevance Scorer
	recency   Scorer
	affinity  Scorer
	diversity DiversityScorer
}

// NewCompositeScorer 创建综合评分器；diversity 为 nil 时使用 ConstantDiversity(DefaultDiversity)。
func NewCompositeScorer(weights config.ScoringWeights, recency Scorer, diversity DiversityScorer) *CompositeScorer {
	if weights.IsZero() {
		weights = config.DefaultScoringWeights()
	}
	if recency == nil {
		recency = NewRecencyScorer(nil)
	}
	if diversity == nil {
		diversity = ConstantDiversity(DefaultDiversity)
	}
	return &CompositeScorer{
		weights:   weights,
		relevance: RelevanceScorer{},
		recency:   recency,
		affinity:  TypeScorer{},
		diversity: diversity,
	}
}

// ScoreAll 为每个候选写入 FinalScore。
func (s *CompositeScorer) ScoreAll(candidates []*Item) {
	for _, item := range candidates {
		score := s.weights.Relevance*s.relevance.Score(item) +
			s.weights.Recency*s.recency.Score(item) +
			s.weights.Type*s.affinity.Score(item) +
			s.weights.Diversity*s.diversity.Diversity(item, candidates)
		item.FinalScore = &score
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// 编译时接口检查
var _ Scorer = RelevanceScorer{}
var _ Scorer = (*RecencyScorer)(nil)
var _ Scorer = TypeScorer{}
var _ DiversityScorer = ConstantDiversity(0)
