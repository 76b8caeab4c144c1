package recorder

import "BreakoutSentinel/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRange(_ *RangeEvent) error              { return nil }
func (n *NoopRecorder) RecordDecision(_ *DecisionEvent) error        { return nil }
func (n *NoopRecorder) RecordTransition(_ *TransitionEvent) error    { return nil }
func (n *NoopRecorder) RecordExecution(_ *ExecutionEvent) error      { return nil }
func (n *NoopRecorder) RecordDayMark(_ *DayMarkEvent) error          { return nil }
func (n *NoopRecorder) RecordAccount(_ *model.AccountSnapshot) error { return nil }
func (n *NoopRecorder) Close() error                                 { return nil }
