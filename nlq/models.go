package nlq

import "math/rand"

// ModelSelector picks which model variant serves an LLM fallback call
// when the caller did not force one.
type ModelSelector interface {
	Select(variants []string) string
}

// FixedSelector always picks the same model.
type FixedSelector struct {
	Model string
}

func (f FixedSelector) Select([]string) string { return f.Model }

// RandomSelector picks uniformly among the configured variants. A nil
// Rand falls back to the shared source.
type RandomSelector struct {
	Rand *rand.Rand
}

func (r RandomSelector) Select(variants []string) string {
	if len(variants) == 0 {
		return ""
	}
	if r.Rand != nil {
		return variants[r.Rand.Intn(len(variants))]
	}
	return variants[rand.Intn(len(variants))]
}
