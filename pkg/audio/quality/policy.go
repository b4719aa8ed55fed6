package quality

// DecisionKind is the verdict on a recording.
type DecisionKind string

const (
	// DecisionAccept means the recording can be saved without asking.
	DecisionAccept DecisionKind = "accept"
	// DecisionReview means the user must see the warnings and choose between
	// retrying and saving anyway.
	DecisionReview DecisionKind = "review"
)

// Decision is the policy outcome for one set of metrics.
type Decision struct {
	Kind     DecisionKind `json:"kind"`
	Warnings []string     `json:"warnings"`
}

// Evaluate decides whether a recording may be saved straight away. Only a
// valid recording with no warnings at all is accepted.
func Evaluate(m Metrics) Decision {
	if m.IsValid && len(m.Warnings) == 0 {
		return Decision{Kind: DecisionAccept}
	}
	warnings := make([]string, len(m.Warnings))
	copy(warnings, m.Warnings)
	return Decision{Kind: DecisionReview, Warnings: warnings}
}

// Accepted reports whether d allows an immediate save.
func (d Decision) Accepted() bool { return d.Kind == DecisionAccept }

// Override returns the warnings to persist with the recording when the user
// chooses to save anyway.
func (d Decision) Override() []string {
	if len(d.Warnings) == 0 {
		return []string{}
	}
	out := make([]string, len(d.Warnings))
	copy(out, d.Warnings)
	return out
}
