// Package mqtt publishes sampling progress to an MQTT broker so that
// dashboards can follow long-running passes.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Client is the subset of paho's mqtt.Client used by Emitter.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

type ProgressPayload struct {
	Source    string  `json:"source"`
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

type ResultPayload struct {
	Source          string `json:"source"`
	Status          string `json:"status"`
	SavedFrames     int    `json:"saved_frames"`
	ProcessedFrames int    `json:"processed_frames"`
	Stride          int    `json:"stride"`
	Format          string `json:"format"`
	Reason          string `json:"reason,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Emitter forwards throttled progress to <topic>/progress and the final
// outcome to <topic>/result.
type Emitter struct {
	client   Client
	topic    string
	qos      byte
	source   string
	throttle entity.ProgressThrottle
	logger   *zap.Logger

	published uint64
	errors    uint64
}

// Connect dials broker (host:port or a full URL) and returns an emitter on
// topic.
func Connect(broker, clientID, topic, source string, step float64, logger *zap.Logger) (*Emitter, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", zap.String("broker", broker), zap.Error(err))
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	logger.Info("mqtt connection established", zap.String("broker", broker), zap.String("client_id", clientID))
	return NewEmitter(client, topic, source, step, logger), nil
}

func NewEmitter(client Client, topic, source string, step float64, logger *zap.Logger) *Emitter {
	return &Emitter{
		client:   client,
		topic:    topic,
		source:   source,
		throttle: entity.ProgressThrottle{Step: step, UnknownTotalEvery: 250},
		logger:   logger,
	}
}

// Progress implements port.ProgressSink. Publish failures are logged and
// never interrupt sampling.
func (e *Emitter) Progress(processed, total int) {
	ev := entity.ProgressEvent{Processed: processed, Total: total}
	if !e.throttle.Due(ev) {
		return
	}
	e.publish(e.topic+"/progress", ProgressPayload{
		Source:    e.source,
		Processed: processed,
		Total:     total,
		Percent:   ev.Percent(),
	})
}

func (e *Emitter) PublishResult(res entity.SamplingResult) {
	payload := ResultPayload{
		Source:          e.source,
		Status:          string(res.Status),
		SavedFrames:     res.SavedFrames,
		ProcessedFrames: res.ProcessedFrames,
		Stride:          res.Stride,
		Format:          string(res.Format),
		Reason:          string(res.Reason()),
	}
	if res.Err != nil {
		payload.Error = res.Err.Error()
	}
	e.publish(e.topic+"/result", payload)
}

// Stats returns the number of successful and failed publishes.
func (e *Emitter) Stats() (published, errors uint64) {
	return e.published, e.errors
}

// Close disconnects with a 250ms grace period.
func (e *Emitter) Close() {
	e.client.Disconnect(250)
}

func (e *Emitter) publish(topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		e.errors++
		e.logger.Warn("marshal mqtt payload", zap.Error(err))
		return
	}

	token := e.client.Publish(topic, e.qos, false, data)
	if !token.WaitTimeout(publishTimeout) {
		e.errors++
		e.logger.Warn("mqtt publish timeout", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		e.errors++
		e.logger.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	e.published++
	e.logger.Debug("mqtt message published", zap.String("topic", topic), zap.Int("size", len(data)))
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
