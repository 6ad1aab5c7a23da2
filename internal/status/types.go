package status

import "time"

// ChannelPhase represents the lifecycle state of a reconciliation channel
type ChannelPhase string

const (
	// ChannelPhaseIdle means the channel has been created but not connected
	ChannelPhaseIdle ChannelPhase = "Idle"

	// ChannelPhaseConnected means the channel is connected and waiting for its first tick to finish
	ChannelPhaseConnected ChannelPhase = "Connected"

	// ChannelPhaseActive means the last tick succeeded
	ChannelPhaseActive ChannelPhase = "Active"

	// ChannelPhaseDegraded means the last tick failed; ticks keep running at the normal interval
	ChannelPhaseDegraded ChannelPhase = "Degraded"

	// ChannelPhaseClosed is terminal
	ChannelPhaseClosed ChannelPhase = "Closed"
)

// OperationCounts counts operation outcomes
type OperationCounts struct {
	Registered   int `json:"registered"`
	Updated      int `json:"updated"`
	Unregistered int `json:"unregistered"`
	// Deferred counts removals handed to the eviction queue instead of being applied
	Deferred int `json:"deferred"`
	Failed   int `json:"failed"`
}

// Add returns the element-wise sum of c and o
func (c OperationCounts) Add(o OperationCounts) OperationCounts {
	return OperationCounts{
		Registered:   c.Registered + o.Registered,
		Updated:      c.Updated + o.Updated,
		Unregistered: c.Unregistered + o.Unregistered,
		Deferred:     c.Deferred + o.Deferred,
		Failed:       c.Failed + o.Failed,
	}
}

// Total returns the number of operations counted, deferred removals included
func (c OperationCounts) Total() int {
	return c.Registered + c.Updated + c.Unregistered + c.Deferred + c.Failed
}

// ChannelStatus represents the current state of one reconciliation channel
type ChannelStatus struct {
	// Name is the configured channel name
	Name string `json:"name"`

	// ID identifies this run of the channel; it changes on every process start
	ID string `json:"id,omitempty"`

	// Phase is the channel lifecycle state
	Phase ChannelPhase `json:"phase"`

	// Message provides additional information about the last tick
	Message string `json:"message,omitempty"`

	// LastAttempt is the start time of the last tick
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// LastSuccess is the start time of the last successful tick
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`

	// ConsecutiveFailures is the number of failed ticks since the last success
	ConsecutiveFailures int `json:"consecutiveFailures,omitempty"`

	// InstanceCount is the size of the retained snapshot
	InstanceCount int `json:"instanceCount"`

	// MalformedCount is the number of records skipped in the last pull
	MalformedCount int `json:"malformedCount,omitempty"`

	// LastOperations counts the operations of the last tick
	LastOperations OperationCounts `json:"lastOperations"`

	// TotalOperations counts operations since the channel was connected
	TotalOperations OperationCounts `json:"totalOperations"`
}

// HasSucceeded reports whether the channel completed at least one successful tick
func (s *ChannelStatus) HasSucceeded() bool {
	return s != nil && s.LastSuccess != nil
}
