package game

// DeveloperIncrement is the progress a developer of the given seniority adds
// to a project of the given complexity in one tick.
func DeveloperIncrement(seniority, complexity int) (float64, error) {
	if complexity <= 0 {
		return 0, ErrInvalidComplexity
	}
	return float64(seniority) * 0.01 / float64(complexity), nil
}

// SalespersonIncrement is the progress a salesperson adds toward the next
// generated project in one tick.
func SalespersonIncrement(experience int) float64 {
	return float64(experience) * 0.01
}
