// ABOUTME: I/O clients attached to the software host
// ABOUTME: Producers feed the write side, consumers receive the read side
package hal

import (
	"fmt"

	"github.com/Resonate-Protocol/loopback-go/pkg/loopback"
)

// ClientID identifies an attached producer or consumer
type ClientID uint64

// Producer fills dst with interleaved samples for one cycle and returns the
// number of frames produced. Frames past the count are treated as silence.
type Producer interface {
	Produce(dst []float32) int
}

// Consumer receives one cycle of interleaved samples read from the device.
// src is reused after Consume returns. Produce and Consume run on the cycle
// goroutine and must not call back into Attach or Detach.
type Consumer interface {
	Consume(src []float32)
}

// ProducerFunc adapts a function to Producer
type ProducerFunc func(dst []float32) int

func (f ProducerFunc) Produce(dst []float32) int { return f(dst) }

// ConsumerFunc adapts a function to Consumer
type ConsumerFunc func(src []float32)

func (f ConsumerFunc) Consume(src []float32) { f(src) }

type attachment struct {
	id       ClientID
	endpoint loopback.Endpoint
	producer Producer
	consumer Consumer
}

// AttachProducer starts I/O on endpoint and writes p's output every cycle
func (h *Host) AttachProducer(endpoint loopback.Endpoint, p Producer) (ClientID, error) {
	if p == nil {
		return 0, fmt.Errorf("nil producer")
	}
	return h.attach(&attachment{endpoint: endpoint, producer: p})
}

// AttachConsumer starts I/O on endpoint and hands c the read side every cycle
func (h *Host) AttachConsumer(endpoint loopback.Endpoint, c Consumer) (ClientID, error) {
	if c == nil {
		return 0, fmt.Errorf("nil consumer")
	}
	return h.attach(&attachment{endpoint: endpoint, consumer: c})
}

func (h *Host) attach(a *attachment) (ClientID, error) {
	if h.closing.Load() {
		return 0, ErrClosed
	}

	h.attachMu.Lock()
	defer h.attachMu.Unlock()

	if err := h.engine.StartIO(a.endpoint); err != nil {
		return 0, fmt.Errorf("failed to start io: %w", err)
	}

	a.id = ClientID(h.nextID.Add(1))
	h.clientsMu.Lock()
	if a.producer != nil {
		h.producers[a.id] = a
	} else {
		h.consumers[a.id] = a
	}
	h.clientsMu.Unlock()

	kind := "consumer"
	if a.producer != nil {
		kind = "producer"
	}
	h.logger.Info("client attached", "id", a.id, "kind", kind, "endpoint", a.endpoint)
	return a.id, nil
}

// Detach removes the client and stops its I/O
func (h *Host) Detach(id ClientID) error {
	h.attachMu.Lock()
	defer h.attachMu.Unlock()

	h.clientsMu.Lock()
	a, ok := h.producers[id]
	if ok {
		delete(h.producers, id)
	} else if a, ok = h.consumers[id]; ok {
		delete(h.consumers, id)
	}
	h.clientsMu.Unlock()

	if !ok {
		return fmt.Errorf("unknown client %d", id)
	}

	// Wait out a cycle that may still hold the client
	h.cycleMu.Lock()
	h.cycleMu.Unlock()

	if err := h.engine.StopIO(a.endpoint); err != nil {
		return fmt.Errorf("failed to stop io: %w", err)
	}
	h.logger.Info("client detached", "id", id, "endpoint", a.endpoint)
	return nil
}

// Attached returns the number of attached producers and consumers
func (h *Host) Attached() (producers, consumers int) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.producers), len(h.consumers)
}

// snapshot groups attached clients by endpoint
func (h *Host) snapshot() (producers, consumers [2][]*attachment) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, a := range h.producers {
		producers[a.endpoint] = append(producers[a.endpoint], a)
	}
	for _, a := range h.consumers {
		consumers[a.endpoint] = append(consumers[a.endpoint], a)
	}
	return producers, consumers
}
