package training

// GlobalStep counts optimizer updates for a model. It travels with the model
// and its checkpoints. Only the session loop in this package advances it;
// everyone else reads a snapshot through Value.
type GlobalStep struct {
	value int
}

// NewGlobalStep creates a counter starting at value, e.g. the step restored
// from a checkpoint.
func NewGlobalStep(value int) *GlobalStep {
	if value < 0 {
		value = 0
	}
	return &GlobalStep{value: value}
}

// Value returns the current step.
func (g *GlobalStep) Value() int {
	return g.value
}

// Thousands returns the step in thousands, as used in checkpoint names.
func (g *GlobalStep) Thousands() int {
	return g.value / 1000
}

func (g *GlobalStep) advance() int {
	g.value++
	return g.value
}
