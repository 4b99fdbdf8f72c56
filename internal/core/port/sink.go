package port

import (
	"context"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
)

// SampleSink receives every applied meter tick.
type SampleSink interface {
	Name() string
	WriteSample(ctx context.Context, event domain.MeterSampleEvent) error
	Close() error
}
