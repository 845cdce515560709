package services

import "math/rand"

// RandSource abstracts the randomness used for candidate and duty-length
// selection so tests can inject a deterministic sequence.
type RandSource interface {
	// Intn returns a uniform int in [0, n). n must be > 0.
	Intn(n int) int
}

type mathRandSource struct {
	rng *rand.Rand
}

// NewRandSource returns a RandSource seeded from the given seed.
func NewRandSource(seed int64) RandSource {
	return &mathRandSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *mathRandSource) Intn(n int) int { return s.rng.Intn(n) }
