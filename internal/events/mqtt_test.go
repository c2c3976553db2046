package events

import (
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{}
}

func (p *recordingPublisher) snapshot() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func TestMQTTSinkTopics(t *testing.T) {
	s := NewMQTTSink(&recordingPublisher{}, "", 0)
	assert.Equal(t, "minima/events/NEWBLOCK", s.Topic(NewBlock))
	s = NewMQTTSink(&recordingPublisher{}, "node1", 0)
	assert.Equal(t, "node1/MAXIMA", s.Topic(Maxima))
}

func TestMQTTSinkForwardsEvents(t *testing.T) {
	pub := &recordingPublisher{}
	m := newTestManager(t, nil)
	sink := NewMQTTSink(pub, "minima", 1)
	sink.Attach(m.Bus())
	defer sink.Close()

	m.Record(NewBlock, map[string]int{"block": 3})
	m.Record(Maxima, map[string]string{"from": "0x1"})

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 2 }, time.Second, 10*time.Millisecond)
	msgs := pub.snapshot()
	topics := []string{msgs[0].topic, msgs[1].topic}
	assert.ElementsMatch(t, []string{"minima/NEWBLOCK", "minima/MAXIMA"}, topics)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.Contains(t, string(msgs[0].payload), `"type"`)

	sink.Close()
	m.Record(NewBlock, nil)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, pub.snapshot(), 2)
}
