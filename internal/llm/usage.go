package llm

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
}

func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Pricing is expressed in USD per million tokens.
type Pricing struct {
	PromptPerMillion     float64
	CompletionPerMillion float64
}

func (p Pricing) Cost(u Usage) float64 {
	return float64(u.PromptTokens)/1e6*p.PromptPerMillion +
		float64(u.CompletionTokens)/1e6*p.CompletionPerMillion
}
