package domain

// FlowKind identifies a one-time-code flow.
type FlowKind string

const (
	FlowVerification FlowKind = "verification"
	FlowReset        FlowKind = "reset"
)

// CodeState is the observed state of a flow's code on an account. Expiry is
// evaluated lazily against the stored timestamp; there is no background
// scheduler.
type CodeState int

const (
	CodeStateNone CodeState = iota
	CodeStateActive
	CodeStateExpired
)
