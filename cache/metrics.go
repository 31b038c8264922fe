package cache

import "time"

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is intended as the default when no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) LoadStarted()                     {}
func (NoopMetrics) LoadFinished(bool, time.Duration) {}
func (NoopMetrics) Disposed(DisposeReason)           {}
func (NoopMetrics) Size(resident, inFlight int)      {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
