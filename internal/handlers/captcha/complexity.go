package captcha

import (
	"math"

	"github.com/iamwavecut/ngguard/internal/db"
)

// Complexity orders providers by difficulty. It only serves as the pass cache threshold.
type Complexity int64

const (
	ComplexityEasy   Complexity = math.MaxInt32/2 - math.MaxInt32/4
	ComplexityMedium Complexity = math.MaxInt32 / 2
	ComplexityHard   Complexity = math.MaxInt32/2 + math.MaxInt32/4

	complexityStep = math.MaxInt32 / 64
)

func ComplexityOf(cfg db.ProviderConfig) Complexity {
	switch cfg.Kind {
	case db.ProviderSlotMachine:
		return ComplexityMedium
	case db.ProviderExpression:
		return expressionComplexity(cfg)
	default:
		return ComplexityEasy
	}
}

// expressionComplexity moves around Medium: more operations, choices and larger numbers make it
// harder, extra attempts make it easier.
func expressionComplexity(cfg db.ProviderConfig) Complexity {
	defaults := db.NewProviderConfig(db.ProviderExpression)
	shift := (cfg.Operations-defaults.Operations)*4 +
		(cfg.Answers-defaults.Answers)*2 +
		(cfg.MaxPerNumber-defaults.MaxPerNumber)/10 -
		(cfg.Attempts-defaults.Attempts)*3
	weight := ComplexityMedium + Complexity(shift)*complexityStep
	switch {
	case weight < ComplexityEasy:
		return ComplexityEasy
	case weight > ComplexityHard:
		return ComplexityHard
	}
	return weight
}
