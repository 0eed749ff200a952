package notifications

import (
	"context"
	"errors"
	"io"
	"sync"

	"slotbook/pkg/logger"
	"slotbook/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*Message
	failures int
	block    chan struct{}
	closed   bool
}

func (p *recordingPublisher) Publish(ctx context.Context, msg *Message) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("transport down")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) published() []*Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Message(nil), p.messages...)
}

func quietLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, "error")
}

func testMetrics() *metrics.Metrics {
	return metrics.NewWithRegistry(prometheus.NewRegistry())
}
