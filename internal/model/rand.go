package model

import "math/rand/v2"

// RandSource is the source of randomness of the simulated pipeline and generator.
// *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// GlobalRand is a non deterministic RandSource backed by the math/rand/v2 global source.
var GlobalRand RandSource = globalRand{}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
