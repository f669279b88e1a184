package kafka

import (
	"context"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Domain event topics.
const (
	TopicRegistrationCreated   = "eventflow.registration.created"
	TopicRegistrationCancelled = "eventflow.registration.cancelled"
	TopicRegistrationPromoted  = "eventflow.registration.promoted"
	TopicRegistrationCheckedIn = "eventflow.registration.checkedin"
	TopicEventPublished        = "eventflow.event.published"
	TopicEventCancelled        = "eventflow.event.cancelled"
)

// AllTopics lists every topic the service produces, for boot-time creation.
func AllTopics() []string {
	return []string{
		TopicRegistrationCreated,
		TopicRegistrationCancelled,
		TopicRegistrationPromoted,
		TopicRegistrationCheckedIn,
		TopicEventPublished,
		TopicEventCancelled,
	}
}

// EnsureTopicsExist creates Kafka topics if they don't already exist.
func EnsureTopicsExist(brokers []string, topics []string) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			log.Printf("Error creating topic %s: %v", topic, err)
		}
	}

	// Give the broker a moment to settle new topics.
	time.Sleep(1 * time.Second)
	return nil
}

// CreateTopicIfNotExists creates a single Kafka topic if it doesn't exist.
func CreateTopicIfNotExists(brokers []string, topic string) error {
	return EnsureTopicsExist(brokers, []string{topic})
}

// ListTopics returns a list of all existing topics.
func ListTopics(brokers []string) ([]string, error) {
	conn, err := kafka.DialContext(context.Background(), "tcp", brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, err
	}

	topicMap := make(map[string]bool)
	for _, p := range partitions {
		topicMap[p.Topic] = true
	}

	var topics []string
	for topic := range topicMap {
		topics = append(topics, topic)
	}
	return topics, nil
}
