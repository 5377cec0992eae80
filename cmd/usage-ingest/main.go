// Command usage-ingest consumes dispatch events from Kafka and stores them
// as usage records in SQLite or PostgreSQL.
//
// Usage:
//
//	usage-ingest [flags]
//
// Flags:
//
//	--brokers string    Comma-separated Kafka brokers (default $KAFKA_BROKERS)
//	--topic string      Dispatch event topic (default $KAFKA_TOPIC or slotgateway.dispatch-events)
//	--group string      Consumer group id (default "slotgateway-usage-ingest")
//	--db-driver string  Database driver: sqlite3 or postgres (default $USAGE_DB_DRIVER or sqlite3)
//	--db-dsn string     Database connection string (default $USAGE_DB_DSN)
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"slotgateway/internal/logger"
	"slotgateway/internal/messaging/kafka"
	"slotgateway/internal/usage"
)

var (
	brokers  = flag.String("brokers", os.Getenv("KAFKA_BROKERS"), "Comma-separated Kafka brokers")
	topic    = flag.String("topic", envOr("KAFKA_TOPIC", kafka.DefaultTopic), "Dispatch event topic")
	group    = flag.String("group", "slotgateway-usage-ingest", "Consumer group id")
	dbDriver = flag.String("db-driver", envOr("USAGE_DB_DRIVER", usage.DriverSQLite), "Database driver (sqlite3, postgres)")
	dbDSN    = flag.String("db-dsn", os.Getenv("USAGE_DB_DSN"), "Database connection string")
)

func main() {
	flag.Parse()
	logger.Init(logger.DefaultConfig())
	log := logger.WithComponent("usage-ingest")

	list := splitBrokers(*brokers)
	if len(list) == 0 {
		log.Error("no kafka brokers configured; set --brokers or KAFKA_BROKERS")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := usage.OpenSQL(ctx, *dbDriver, *dbDSN)
	if err != nil {
		log.Error("opening usage database", "driver", *dbDriver, "error", err.Error())
		os.Exit(1)
	}
	defer store.Close()

	consumer, err := kafka.NewConsumer(list, *group, []string{*topic})
	if err != nil {
		log.Error("creating consumer", "error", err.Error())
		os.Exit(1)
	}
	defer consumer.Close()

	log.Info("ingesting dispatch events", "topic", *topic, "group", *group, "driver", *dbDriver)
	err = consumer.Start(ctx, kafka.DispatchEvents(func(ctx context.Context, event kafka.DispatchEvent) error {
		return store.Insert(ctx, recordFromEvent(event))
	}))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", "error", err.Error())
		os.Exit(1)
	}
	log.Info("usage-ingest stopped")
}

// recordFromEvent maps a dispatch event onto the usage table. The event id
// doubles as the record id so events already written by the gateway are skipped.
func recordFromEvent(e kafka.DispatchEvent) usage.Record {
	r := usage.Record{
		ID:          e.EventID,
		Timestamp:   e.Timestamp,
		RequestID:   e.RequestID,
		TraceID:     e.TraceID,
		APIKeyName:  e.APIKeyName,
		IncomingAPI: "kafka",
		TaskClass:   e.TaskClass,
		PromptID:    e.PromptID,
		SlotID:      e.SlotID,
		Provider:    e.Provider,
		Model:       e.Model,
		Status:      "success",
		Attempts:    len(e.Attempts),
		DurationMs:  e.DurationMs,
		Usage:       e.Usage,
	}
	if e.Outcome != "success" {
		r.Status, r.ErrorKind = "error", e.Outcome
	}
	return r
}

func splitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
