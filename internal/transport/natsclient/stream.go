package natsclient

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamRecordEvents is the durable stream carrying both raw
	// source bytes (records.in.<source>) and formatted sink payloads
	// (records.out.<sink>).
	StreamRecordEvents = "RECORD_EVENTS"
	// SubjectRecordsIn captures raw bytes read off a source, destined
	// for a parser.
	SubjectRecordsIn = "records.in.>"
	// SubjectRecordsOut captures formatter output destined for a sink.
	SubjectRecordsOut = "records.out.>"
)

var streamSubjects = []string{SubjectRecordsIn, SubjectRecordsOut}

// ProvisionStreams idempotently ensures the RECORD_EVENTS JetStream
// stream exists with the correct subject filter. It creates the stream
// on first run and is a no-op if the stream already exists.
func (c *Client) ProvisionStreams() error {
	info, err := c.JS.StreamInfo(StreamRecordEvents)
	if err == nil {
		_ = info
		c.Log.Info("NATS stream already exists", zap.String("stream", StreamRecordEvents))
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamRecordEvents,
		Subjects:  streamSubjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}

	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	c.Log.Info("NATS stream provisioned",
		zap.String("stream", StreamRecordEvents),
		zap.Strings("subjects", streamSubjects),
	)
	return nil
}
