// Package metrics exposes the Prometheus collectors updated by the GMAO services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkOrderTransitions counts work order status changes.
	WorkOrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmao_work_order_transitions_total",
			Help: "Work order status transitions",
		},
		[]string{"to"},
	)

	// FinalizeRejections counts refused finalize attempts by reason.
	FinalizeRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmao_finalize_rejections_total",
			Help: "Finalize attempts refused, by reason",
		},
		[]string{"reason"},
	)

	// AnswersSaved counts answer upserts by source (submit or autosave).
	AnswersSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmao_answers_saved_total",
			Help: "Answers written",
		},
		[]string{"source"},
	)

	// RepairTransitions counts repair request status changes.
	RepairTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmao_repair_transitions_total",
			Help: "Repair request status transitions",
		},
		[]string{"to"},
	)

	// MediaStored counts accepted and rejected attachments.
	MediaStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmao_media_total",
			Help: "Media attachments by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// MediaBytes observes attachment sizes.
	MediaBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gmao_media_bytes",
			Help:    "Size of accepted media attachments",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	// TemplateTransitions counts template lifecycle changes.
	TemplateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmao_template_transitions_total",
			Help: "Checklist template status transitions",
		},
		[]string{"to"},
	)

	// PlanRuns counts work orders generated by preventive plans.
	PlanRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gmao_plan_work_orders_total",
			Help: "Work orders created by preventive plans",
		},
	)

	// NotificationFailures counts sink errors, which are logged and dropped.
	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmao_notification_failures_total",
			Help: "Notification sink delivery failures",
		},
		[]string{"sink"},
	)
)
