// утилита не зависит от приложения и нужна только для ручной проверки:
// читает топик уведомлений и печатает каждое сообщение
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/segmentio/kafka-go"
)

type notification struct {
	OrderKey string `json:"order_key"`
	Text     string `json:"text"`
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma separated broker list")
	topic := flag.String("topic", "pauta-notifications", "notification topic")
	flag.Parse()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     strings.Split(*brokers, ","),
		Topic:       *topic,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Reading %s from %s...", *topic, *brokers)
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			log.Fatalf("Failed to read message: %v", err)
		}

		var n notification
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			log.Printf("offset %d: not a notification: %v", msg.Offset, err)
			continue
		}
		fmt.Printf("--- %s (partition %d, offset %d)\n%s\n\n", n.OrderKey, msg.Partition, msg.Offset, n.Text)
	}
}
