package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ggems_endpoint_responses_total",
		Help: "The total number of metrics endpoint responses",
	}, []string{"endpoint", "status_code"})

	// RAM ledger
	RAMUsedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ggems_ram_used_bytes",
		Help: "Device memory currently allocated through the manager, per context",
	}, []string{"context"})

	BufferAllocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ggems_buffer_allocations_total",
		Help: "Total number of device buffers allocated, per context",
	}, []string{"context"})

	BufferDeallocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ggems_buffer_deallocations_total",
		Help: "Total number of device buffers released, per context",
	}, []string{"context"})

	// Kernels
	KernelCompilations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ggems_kernel_compilations_total",
		Help: "Total number of kernel compilations by outcome",
	}, []string{"status"})

	KernelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ggems_kernel_duration_ms",
		Help:    "Kernel execution time read from the profiling event, in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 20), // 10µs to ~5s
	}, []string{"kernel"})
)
