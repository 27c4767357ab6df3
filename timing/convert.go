package timing

// RealSecondsToMillisols converts seconds of real-equivalent time into
// simulated millisols.
func RealSecondsToMillisols(seconds float64) Millisols {
	return Millisols(seconds / SecondsPerMillisol)
}

// Seconds converts a span of millisols into real-equivalent seconds.
func (d Millisols) Seconds() float64 {
	return float64(d) * SecondsPerMillisol
}
