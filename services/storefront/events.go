package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// KafkaPublisher emits domain events on an async producer. Publishing is
// fire-and-forget; delivery errors are logged from a drain goroutine.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
}

func NewKafkaPublisher(brokers string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewAsyncProducer([]string{brokers}, config)
	if err != nil {
		return nil, fmt.Errorf("start kafka producer: %w", err)
	}

	go func() {
		for err := range producer.Errors() {
			log.Printf("⚠️ [KAFKA] failed to send message: %v", err)
		}
	}()

	return &KafkaPublisher{producer: producer}, nil
}

func (p *KafkaPublisher) Publish(topic string, message map[string]interface{}) {
	bytes, _ := json.Marshal(message)
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(bytes),
	}
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
