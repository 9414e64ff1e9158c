package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/world-persist/internal/eventbus"
)

const defaultNatsURL = "nats://127.0.0.1:4222"

// event-cli подключается к шине событий персистенции и печатает события
// (как tail -f). Удобен для наблюдения за коммитами живого сервера.
func main() {
	var (
		natsURL   = flag.String("nats", defaultNatsURL, "адрес NATS сервера")
		stream    = flag.String("stream", "PERSIST", "имя JetStream стрима")
		eventType = flag.String("type", "", "фильтр по типу события (пусто — все)")
		raw       = flag.Bool("raw", false, "печатать payload как есть, без форматирования")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Не удалось подключиться к NATS: %v", err)
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, *eventType, func(ctx context.Context, ev *eventbus.Envelope) {
		printEvent(ev, *raw)
	})
	if err != nil {
		log.Fatalf("❌ Ошибка подписки: %v", err)
	}
	defer sub.Unsubscribe()

	fmt.Printf("Слушаем %s (стрим %s, фильтр %q). Ctrl+C для выхода.\n",
		*natsURL, *stream, orAll(*eventType))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	stats := bus.Metrics()
	fmt.Printf("\nПолучено событий: %d\n", stats.Consumed)
}

func printEvent(ev *eventbus.Envelope, raw bool) {
	ts := ev.Timestamp.Local().Format("15:04:05.000")
	if raw {
		fmt.Printf("%s %-16s %s %s\n", ts, ev.EventType, ev.Source, ev.Payload)
		return
	}

	// Компактная печать известных payload-ов
	var fields map[string]interface{}
	if err := json.Unmarshal(ev.Payload, &fields); err != nil {
		fmt.Printf("%s %-16s %s (payload %d байт)\n", ts, ev.EventType, ev.Source, len(ev.Payload))
		return
	}
	fmt.Printf("%s %-16s %s", ts, ev.EventType, ev.Source)
	for k, v := range fields {
		fmt.Printf(" %s=%v", k, v)
	}
	fmt.Println()
}

func orAll(s string) string {
	if s == "" {
		return "все"
	}
	return s
}
