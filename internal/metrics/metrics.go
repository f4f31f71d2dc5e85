// Package metrics exposes the process-wide Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesPersisted counts conversation turns written to durable storage.
	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamassist_messages_persisted_total",
		Help: "Conversation messages persisted to the store.",
	})

	// MessagesFiltered counts assistant turns dropped by group-chat
	// visibility filtering before persistence.
	MessagesFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamassist_messages_filtered_total",
		Help: "Assistant messages filtered out of group-chat persistence.",
	})

	// Delegations counts capability hand-offs by capability name.
	Delegations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamassist_delegations_total",
		Help: "Requests delegated to a capability.",
	}, []string{"capability"})

	// FeedbackReactions counts recorded feedback by reaction kind.
	FeedbackReactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamassist_feedback_reactions_total",
		Help: "User feedback reactions recorded.",
	}, []string{"reaction"})

	// FallbackReplies counts requests answered with the canned fallback
	// because processing failed.
	FallbackReplies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamassist_fallback_replies_total",
		Help: "Requests that fell back to the generic error reply.",
	})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
