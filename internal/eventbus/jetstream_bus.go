package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	nats "github.com/nats-io/nats.go"
)

// JetStreamBus реализует EventBus поверх NATS JetStream.
// Сообщения сжимаются zstd перед публикацией: события коммитов идут
// потоком на каждый батч, и на большом мире их объем заметен.
type JetStreamBus struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	stream    string
	enc       *zstd.Encoder
	dec       *zstd.Decoder
	published uint64
	consumed  uint64
	dropped   uint64
}

// NewJetStreamBus подключается к кластеру NATS и гарантирует наличие стрима.
// url: nats://127.0.0.1:4222, stream: "PERSIST".
func NewJetStreamBus(url, stream string, retention time.Duration) (*JetStreamBus, error) {
	if stream == "" {
		stream = "PERSIST"
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Drain()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure stream exists (subjects: persist.*)
	_, err = js.StreamInfo(stream)
	if err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{"persist.*"},
			Retention: nats.LimitsPolicy,
			MaxAge:    retention,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			nc.Drain()
			return nil, fmt.Errorf("add stream: %w", err)
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		nc.Drain()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		nc.Drain()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &JetStreamBus{nc: nc, js: js, stream: stream, enc: enc, dec: dec}, nil
}

// Publish сериализует Envelope в JSON, сжимает и публикует в subject
// persist.<type>.
func (jb *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	subj := fmt.Sprintf("persist.%s", ev.EventType)
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = jb.js.Publish(subj, jb.enc.EncodeAll(data, nil))
	if err == nil {
		atomic.AddUint64(&jb.published, 1)
	}
	return err
}

// Subscribe создает durable consumer и вызывает handler асинхронно.
func (jb *JetStreamBus) Subscribe(ctx context.Context, eventType string, h Handler) (Subscription, error) {
	subj := "persist.*"
	if eventType != "" {
		subj = fmt.Sprintf("persist.%s", eventType)
	}

	durable := nats.Durable(fmt.Sprintf("sub_%d", time.Now().UnixNano()))

	natSub, err := jb.js.Subscribe(subj, func(msg *nats.Msg) {
		raw, err := jb.dec.DecodeAll(msg.Data, nil)
		if err == nil {
			var ev Envelope
			if err := json.Unmarshal(raw, &ev); err == nil {
				h(ctx, &ev)
				atomic.AddUint64(&jb.consumed, 1)
			}
		}
		_ = msg.Ack()
	}, nats.ManualAck(), durable, nats.AckWait(30*time.Second))
	if err != nil {
		return nil, err
	}

	return &jetSub{natSub}, nil
}

func (jb *JetStreamBus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&jb.published),
		Consumed:  atomic.LoadUint64(&jb.consumed),
		Dropped:   atomic.LoadUint64(&jb.dropped),
	}
}

// Close разрывает соединение с NATS.
func (jb *JetStreamBus) Close() {
	jb.nc.Drain()
}

type jetSub struct {
	sub *nats.Subscription
}

func (s *jetSub) Unsubscribe() {
	_ = s.sub.Unsubscribe()
}
