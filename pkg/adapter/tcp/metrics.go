package tcp

// Metrics observes the TCP adapter. Implementations must be safe for
// concurrent use; see pkg/metrics for the Prometheus one.
type Metrics interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	SetActiveConnections(count int32)

	// RecordFrame counts one frame; direction is "in" or "out".
	RecordFrame(direction string, kind FrameKind)

	// RecordBytes counts transfer channel payload bytes.
	RecordBytes(direction string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) RecordConnectionAccepted()     {}
func (noopMetrics) RecordConnectionClosed()       {}
func (noopMetrics) SetActiveConnections(int32)    {}
func (noopMetrics) RecordFrame(string, FrameKind) {}
func (noopMetrics) RecordBytes(string, int64)     {}
