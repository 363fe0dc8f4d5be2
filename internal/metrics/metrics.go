// Package metrics implements Prometheus metrics for the capture agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturePacketsTotal counts packets read off each capture input.
	CapturePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_agent_capture_packets_total",
			Help: "Total number of packets read from a capture input",
		},
		[]string{"input"},
	)

	// CaptureDropsTotal counts packets dropped by the capture layer, by
	// input and reason; RemoteInput counts datagrams that fail HEP decoding
	// under reason "hep_decode".
	CaptureDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_agent_capture_drops_total",
			Help: "Total number of packets dropped during capture",
		},
		[]string{"input", "reason"},
	)

	// CaptureInputStatus tracks whether each capture input is running or
	// paused (0=paused, 1=running).
	CaptureInputStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capture_agent_capture_input_status",
			Help: "Current status of a capture input (0=paused, 1=running)",
		},
		[]string{"input"},
	)

	// DissectMessagesTotal counts SIP messages reassembled, by transport.
	DissectMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_agent_dissect_messages_total",
			Help: "Total number of SIP messages reassembled",
		},
		[]string{"transport"},
	)

	// DissectErrorsTotal counts dissection failures, by stage.
	DissectErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_agent_dissect_errors_total",
			Help: "Total number of dissection errors",
		},
		[]string{"stage"},
	)

	// TLSDecryptFailuresTotal counts TLS records that failed to decrypt
	// (no keyring match, unsupported cipher suite, bad padding).
	TLSDecryptFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capture_agent_tls_decrypt_failures_total",
			Help: "Total number of TLS records that failed to decrypt",
		},
	)

	// StorageCallsActive tracks the number of call groups currently held
	// in memory.
	StorageCallsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capture_agent_storage_calls_active",
			Help: "Current number of call groups held in memory",
		},
	)

	// StorageBytesInUse tracks the estimated memory footprint of retained
	// messages, in bytes.
	StorageBytesInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capture_agent_storage_bytes_in_use",
			Help: "Estimated memory in bytes held by retained call groups",
		},
	)

	// StorageEvictionsTotal counts call groups evicted to respect the
	// configured memory limit.
	StorageEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capture_agent_storage_evictions_total",
			Help: "Total number of call groups evicted under memory pressure",
		},
	)

	// StorageMessagesFilteredTotal counts messages dropped by the
	// method/payload filter before reaching storage.
	StorageMessagesFilteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capture_agent_storage_messages_filtered_total",
			Help: "Total number of messages dropped by the storage filter",
		},
	)

	// StorageResourceExhaustedTotal counts messages rejected because the
	// configured memory_limit could not be satisfied even after evicting
	// every evictable terminal call.
	StorageResourceExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capture_agent_storage_resource_exhausted_total",
			Help: "Total number of messages rejected because the memory limit could not be freed",
		},
	)
)

// CaptureInputStatusValue is the numeric value written to CaptureInputStatus.
const (
	CaptureInputPaused  = 0
	CaptureInputRunning = 1
)
