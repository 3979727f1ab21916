package messaging

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"engagement-server/pkg/chunker"
	"engagement-server/pkg/metrics"
)

// Routing keys for published events.
const (
	keyAnalysisComplete = "analysis.complete"
	keyTranscriptReady  = "transcript.ready"
)

// Publisher emits pipeline events to an AMQP exchange. A publisher with no
// broker URL configured is a no-op, so callers can publish unconditionally.
type Publisher struct {
	logger   *logrus.Logger
	url      string
	exchange string

	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPublisher builds a publisher; call Connect before publishing.
func NewPublisher(logger *logrus.Logger, url, exchange string) *Publisher {
	metrics.Init(logger)
	return &Publisher{
		logger:   logger,
		url:      url,
		exchange: exchange,
	}
}

// Enabled reports whether a broker URL was configured.
func (p *Publisher) Enabled() bool {
	return p.url != ""
}

// Connect dials the broker and declares the exchange. A disabled publisher
// connects trivially.
func (p *Publisher) Connect() error {
	if !p.Enabled() {
		p.logger.Debug("AMQP publishing disabled; no broker URL configured")
		return nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := channel.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return err
	}

	p.conn = conn
	p.channel = channel
	p.logger.WithField("exchange", p.exchange).Info("Connected to AMQP broker")
	return nil
}

// Close releases the AMQP channel and connection.
func (p *Publisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// AnalysisCompleteEvent announces a freshly written analysis artifact.
type AnalysisCompleteEvent struct {
	SessionID   string    `json:"sessionId"`
	Artifact    string    `json:"artifact"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// PublishAnalysisComplete emits an analysis-complete event. Publish
// failures are logged, not returned: messaging is best-effort and must
// never fail a finished analysis run.
func (p *Publisher) PublishAnalysisComplete(sessionID, artifactPath string) {
	p.publish(keyAnalysisComplete, AnalysisCompleteEvent{
		SessionID:   sessionID,
		Artifact:    artifactPath,
		GeneratedAt: time.Now().UTC(),
	})
}

// TranscriptReadyEvent carries a merged session transcript.
type TranscriptReadyEvent struct {
	SessionID  string                      `json:"sessionId"`
	Transcript chunker.TranscriptionResult `json:"transcript"`
}

// PublishTranscript emits a merged transcript for downstream consumers.
func (p *Publisher) PublishTranscript(sessionID string, transcript chunker.TranscriptionResult) {
	p.publish(keyTranscriptReady, TranscriptReadyEvent{
		SessionID:  sessionID,
		Transcript: transcript,
	})
}

func (p *Publisher) publish(key string, event interface{}) {
	if !p.Enabled() || p.channel == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).WithField("routing_key", key).Error("Failed to marshal event")
		metrics.PublishErrors.Inc()
		return
	}
	err = p.channel.Publish(
		p.exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		p.logger.WithError(err).WithField("routing_key", key).Error("Failed to publish event")
		metrics.PublishErrors.Inc()
		return
	}
	metrics.EventsPublished.WithLabelValues(key).Inc()
}
