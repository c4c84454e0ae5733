// Package metrics holds the prometheus instrumentation for the inbox.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesIngested counts inbound message units persisted, by content type.
	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_messages_ingested_total",
		Help: "Inbound WhatsApp messages persisted.",
	}, []string{"type"})

	// IngestDuplicates counts provider redeliveries skipped by the
	// provider-message-id uniqueness check.
	IngestDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inbox_ingest_duplicates_total",
		Help: "Webhook message units skipped as duplicates.",
	})

	// IngestFailures counts message units that failed to process.
	IngestFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inbox_ingest_failures_total",
		Help: "Webhook message units that failed to process.",
	})

	// StatusUpdates counts delivery-status updates, by resulting status.
	StatusUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_status_updates_total",
		Help: "Delivery status updates applied.",
	}, []string{"status"})

	// SendsTotal counts outbound sends, by outcome.
	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_sends_total",
		Help: "Outbound send attempts.",
	}, []string{"outcome"})

	// EventsPublished counts change events pushed to the bus, by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_events_published_total",
		Help: "Change events published to the event bus.",
	}, []string{"event"})
)
