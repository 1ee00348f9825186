package policy

import "fmt"

// LinearDecay linearly decays epsilon from Start to End over Steps
// steps. After Steps steps, epsilon stays at End.
type LinearDecay struct {
	Start float64 `yaml:"Start"`
	End   float64 `yaml:"End"`
	Steps int     `yaml:"Steps"`
}

// Validate returns an error if the LinearDecay is not valid
func (l LinearDecay) Validate() error {
	if l.Start < 0 || l.Start > 1 || l.End < 0 || l.End > 1 {
		return fmt.Errorf("validate: epsilon must be in [0, 1]\n\t"+
			"have(start=%v, end=%v)", l.Start, l.End)
	}
	if l.End > l.Start {
		return fmt.Errorf("validate: epsilon cannot increase\n\t"+
			"have(start=%v, end=%v)", l.Start, l.End)
	}
	if l.Steps < 1 && l.Start != l.End {
		return fmt.Errorf("validate: decay steps must be positive\n\t"+
			"have(%v)", l.Steps)
	}
	return nil
}

// Rate returns the amount epsilon is decreased by each step
func (l LinearDecay) Rate() float64 {
	if l.Steps < 1 {
		return 0
	}
	return (l.Start - l.End) / float64(l.Steps)
}

// Next returns the value of epsilon after one step from epsilon
func (l LinearDecay) Next(epsilon float64) float64 {
	if epsilon <= l.End {
		return epsilon
	}
	next := epsilon - l.Rate()
	if next < l.End {
		return l.End
	}
	return next
}

// At returns the value of epsilon after step steps from Start
func (l LinearDecay) At(step int) float64 {
	if step >= l.Steps {
		return l.End
	}
	return l.Start - l.Rate()*float64(step)
}
