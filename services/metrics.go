package services

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type OlympiadMetrics struct {
	promotions          *prometheus.CounterVec
	promotionFailures   *prometheus.CounterVec
	quizSubmissions     prometheus.Counter
	artifactSubmissions *prometheus.CounterVec
	juryScores          *prometheus.CounterVec
	emails              *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsRegistry *OlympiadMetrics
)

// Metrics returns the process-wide collectors, registering them on first use.
func Metrics() *OlympiadMetrics {
	metricsOnce.Do(func() {
		metricsRegistry = &OlympiadMetrics{
			promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "olympiad_promotions_total",
				Help: "Participants promoted out of a round, by round and category.",
			}, []string{"round", "category"}),
			promotionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "olympiad_promotion_failures_total",
				Help: "Promotion failures by round and category.",
			}, []string{"round", "category"}),
			quizSubmissions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "olympiad_quiz_submissions_total",
				Help: "Scored quiz submissions.",
			}),
			artifactSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "olympiad_artifact_submissions_total",
				Help: "Round artifact submissions by outcome.",
			}, []string{"outcome"}),
			juryScores: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "olympiad_jury_scores_total",
				Help: "Jury scores recorded by round.",
			}, []string{"round"}),
			emails: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "olympiad_emails_total",
				Help: "Notification email delivery attempts by result.",
			}, []string{"result"}),
		}
		prometheus.MustRegister(
			metricsRegistry.promotions,
			metricsRegistry.promotionFailures,
			metricsRegistry.quizSubmissions,
			metricsRegistry.artifactSubmissions,
			metricsRegistry.juryScores,
			metricsRegistry.emails,
		)
	})
	return metricsRegistry
}

func (m *OlympiadMetrics) ObservePromotions(round, category, n int) {
	if m == nil || n == 0 {
		return
	}
	m.promotions.WithLabelValues(strconv.Itoa(round), strconv.Itoa(category)).Add(float64(n))
}

func (m *OlympiadMetrics) ObservePromotionFailure(round, category int) {
	if m == nil {
		return
	}
	m.promotionFailures.WithLabelValues(strconv.Itoa(round), strconv.Itoa(category)).Inc()
}

func (m *OlympiadMetrics) ObserveQuizSubmission() {
	if m == nil {
		return
	}
	m.quizSubmissions.Inc()
}

func (m *OlympiadMetrics) ObserveArtifactSubmission(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.artifactSubmissions.WithLabelValues(outcome).Inc()
}

func (m *OlympiadMetrics) ObserveJuryScore(round int) {
	if m == nil {
		return
	}
	m.juryScores.WithLabelValues(strconv.Itoa(round)).Inc()
}

func (m *OlympiadMetrics) ObserveEmail(result string) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues(result).Inc()
}
