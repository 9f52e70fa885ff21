package embedding

// CostTable 每千 Token 的模型单价
type CostTable map[string]float64

// Cost 计算 tokens 的费用，未登记的模型费用为 0
func (t CostTable) Cost(model string, tokens int) float64 {
	return float64(tokens) / 1000 * t[model]
}
