package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assembly_events_created_total",
		Help: "Total number of events created, including generated recurrence instances.",
	})

	EventTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assembly_event_transitions_total",
		Help: "Total number of lifecycle transitions, labelled by source and target status.",
	}, []string{"from", "to"})

	ConflictsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assembly_schedule_conflicts_total",
		Help: "Total number of event creations rejected for a scheduling overlap.",
	})

	AttendanceMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assembly_attendance_marks_total",
		Help: "Total number of attendance marks applied, labelled by resulting status.",
	}, []string{"status"})

	SweepClosures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assembly_sweep_closures_total",
		Help: "Total number of events closed by the auto-closure sweep.",
	})

	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assembly_sweep_errors_total",
		Help: "Total number of per-event failures during closure sweeps.",
	})

	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assembly_reminders_sent_total",
		Help: "Total number of event reminder notifications emitted.",
	})
)
