package telemetry

import (
	"context"
	"fmt"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/logging"
)

// Sender hands a payload to the transport. *mqtt.Client satisfies it.
type Sender interface {
	Publish(topic string, payload []byte) error
}

// Sink receives every sample that the transport accepted.
type Sink interface {
	Record(ctx context.Context, s Sample)
}

// Logger defines the logging interface for the publisher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Publisher sends one sample per call.
type Publisher struct {
	generator *Generator
	topic     string
	console   *logging.Console
	logger    Logger
	sink      Sink
}

// NewPublisher creates a Publisher that sends to topic.
func NewPublisher(generator *Generator, topic string, console *logging.Console) *Publisher {
	return &Publisher{
		generator: generator,
		topic:     topic,
		console:   console,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// SetSink installs a sink for accepted samples. Nil removes it.
func (p *Publisher) SetSink(sink Sink) {
	p.sink = sink
}

// Publish draws a sample and hands it to sender once.
//
// A send error is logged and returned; the sample is not retried.
func (p *Publisher) Publish(ctx context.Context, sender Sender) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.console.Println("Publishing message")

	sample := p.generator.Next()
	payload := Encode(sample)

	if err := sender.Publish(p.topic, payload); err != nil {
		p.logger.Warn("telemetry publish failed", "topic", p.topic, "error", err)
		return fmt.Errorf("publish telemetry: %w", err)
	}

	p.logger.Debug("telemetry published",
		"topic", p.topic,
		"temperature", sample.Temperature,
		"humidity", sample.Humidity,
	)

	if p.sink != nil {
		p.sink.Record(ctx, sample)
	}
	return nil
}
