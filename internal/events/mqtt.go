package events

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/eventbus"
)

// Publisher is the part of an MQTT client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

const mqttPublishTimeout = 5 * time.Second

// MQTTSink republishes every recorded event to <prefix>/<TYPE>.
type MQTTSink struct {
	pub    Publisher
	prefix string
	qos    byte
	stop   func()
	logger zerolog.Logger
	closer func()
}

// ConnectMQTT connects to the broker and returns a sink that is not yet attached.
func ConnectMQTT(opts MQTTOptions) (*MQTTSink, error) {
	co := mqtt.NewClientOptions().AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectTimeout(10 * time.Second)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", opts.Broker).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, ErrDelivery.MsgErr("MQTT connection failed: "+opts.Broker, token.Error())
	}
	log.Info().Str("broker", opts.Broker).Msg("connected to MQTT broker")

	sink := NewMQTTSink(client, opts.TopicPrefix, opts.QoS)
	sink.closer = func() { client.Disconnect(250) }
	return sink, nil
}

// NewMQTTSink wraps an existing publisher.
func NewMQTTSink(pub Publisher, prefix string, qos byte) *MQTTSink {
	if prefix == "" {
		prefix = "minima/events"
	}
	return &MQTTSink{
		pub:    pub,
		prefix: prefix,
		qos:    qos,
		logger: log.With().Str("component", "mqtt").Logger(),
	}
}

// Topic returns the MQTT topic events of type t are published on.
func (s *MQTTSink) Topic(t EventType) string {
	return s.prefix + "/" + string(t)
}

// Attach starts forwarding events from bus.
func (s *MQTTSink) Attach(bus *eventbus.EventBus) {
	s.stop = bus.SubscribeFunc(TopicPrefix+"*", 256, func(be eventbus.Event) {
		if e, ok := be.Data.(Event); ok {
			s.publish(e)
		}
	})
}

func (s *MQTTSink) publish(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.logger.Error().Err(err).Msg("unable to encode event")
		return
	}
	token := s.pub.Publish(s.Topic(e.Type), s.qos, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		s.logger.Warn().Str("type", string(e.Type)).Msg("MQTT publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Warn().Err(err).Str("type", string(e.Type)).Msg("MQTT publish failed")
	}
}

// Close detaches from the bus and disconnects a client created by ConnectMQTT.
func (s *MQTTSink) Close() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	if s.closer != nil {
		s.closer()
		s.closer = nil
	}
}
