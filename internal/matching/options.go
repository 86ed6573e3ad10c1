package matching

// Options holds the tunables of the scoring and rotation algorithm.
type Options struct {
	// ReputationWeight and GrowthWeight blend the two score components.
	// They should sum to 1 for scores to stay inside [0,1].
	ReputationWeight float64
	GrowthWeight     float64

	// TopCandidates is the N used both for the rotation median and for
	// truncating the candidate list returned over the API.
	TopCandidates int

	// RotationFactor rejects a requested operator whose recent assignment
	// count exceeds RotationFactor times the median of the top-N
	// candidates.
	RotationFactor float64
}

// DefaultOptions returns the growth-rotation defaults.
func DefaultOptions() Options {
	return Options{
		ReputationWeight: 0.6,
		GrowthWeight:     0.4,
		TopCandidates:    5,
		RotationFactor:   2.0,
	}
}

// applyDefaults backfills zero values so a partially configured Options
// still behaves sensibly.
func (o *Options) applyDefaults() {
	defaults := DefaultOptions()
	if o.ReputationWeight == 0 && o.GrowthWeight == 0 {
		o.ReputationWeight = defaults.ReputationWeight
		o.GrowthWeight = defaults.GrowthWeight
	}
	if o.TopCandidates <= 0 {
		o.TopCandidates = defaults.TopCandidates
	}
	if o.RotationFactor <= 0 {
		o.RotationFactor = defaults.RotationFactor
	}
}
