package mq

import (
	"context"
	"strconv"
	"sync"
)

// MemoryBroker 是进程内的 Producer/Consumer，用于 CLI 和测试
type MemoryBroker struct {
	mu     sync.Mutex
	seq    int
	subs   map[string][]chan *Message
	record []*Message
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string][]chan *Message)}
}

func (b *MemoryBroker) Publish(_ context.Context, topic string, key string, payload []byte) error {
	b.mu.Lock()
	b.seq++
	msg := &Message{
		ID:      strconv.Itoa(b.seq),
		Topic:   topic,
		Key:     key,
		Payload: append([]byte(nil), payload...),
	}
	b.record = append(b.record, msg)
	subs := append([]chan *Message(nil), b.subs[topic]...)
	b.mu.Unlock()

	for _, ch := range subs {
		ch <- msg
	}
	return nil
}

// Published 返回某个主题已发布的所有消息
func (b *MemoryBroker) Published(topic string) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Message
	for _, m := range b.record {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Subscribers 返回某个主题当前的订阅者数量
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	ch := make(chan *Message, 64)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		subs := b.subs[topic]
		for i, c := range subs {
			if c == ch {
				b.subs[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			_ = handler(msg)
		}
	}
}

func (b *MemoryBroker) Close() error { return nil }
