package repository

// Verdict is the judging outcome vocabulary shared with judger workers.
type Verdict string

const (
	VerdictWaiting             Verdict = "WJ"
	VerdictAccepted            Verdict = "AC"
	VerdictWrongAnswer         Verdict = "WA"
	VerdictTimeLimitExceeded   Verdict = "TLE"
	VerdictMemoryLimitExceeded Verdict = "MLE"
	VerdictOutputLimitExceeded Verdict = "OLE"
	VerdictRuntimeError        Verdict = "RE"
	VerdictCompileError        Verdict = "CE"
	VerdictSystemError         Verdict = "SE"
)

var knownVerdicts = map[Verdict]struct{}{
	VerdictWaiting:             {},
	VerdictAccepted:            {},
	VerdictWrongAnswer:         {},
	VerdictTimeLimitExceeded:   {},
	VerdictMemoryLimitExceeded: {},
	VerdictOutputLimitExceeded: {},
	VerdictRuntimeError:        {},
	VerdictCompileError:        {},
	VerdictSystemError:         {},
}

// Valid reports whether v belongs to the verdict vocabulary.
func (v Verdict) Valid() bool {
	_, ok := knownVerdicts[v]
	return ok
}

// IsFinal reports whether v is a terminal judging outcome.
func (v Verdict) IsFinal() bool {
	return v.Valid() && v != VerdictWaiting
}

// IsAccepted reports whether v counts as a solve.
func (v Verdict) IsAccepted() bool {
	return v == VerdictAccepted
}
