package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SequenceAllocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coffee_sequence_allocations_total",
		Help: "Numbers handed out by the sequence allocator, by scope.",
	}, []string{"scope"})

	StageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coffee_stage_transitions_total",
		Help: "Inventory stage transitions, by stage and event.",
	}, []string{"stage", "event"})

	RFIDConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coffee_rfid_conflicts_total",
		Help: "RFID assignments refused because the tag or batch was already bound.",
	})

	RejectMerges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coffee_reject_merges_total",
		Help: "Reject batches created by merging source batches.",
	})

	SubBatchesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coffee_sub_batches_recorded_total",
		Help: "Sub-batch splits and bag updates written, by grade.",
	}, []string{"grade"})
)

// Handler exposes the default registry on a fiber route.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
