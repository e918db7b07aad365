package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespaceLedger = "ledger"
	namespaceEscrow = "escrow"
	namespaceBus    = "eventbus"
)

var (
	// TxCommitted committed transactions by command
	TxCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceLedger,
			Name:      "tx_committed_total",
			Help:      "Committed ledger transactions.",
		}, []string{"command"})

	// TxAborted aborted transactions by command and error kind
	TxAborted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceLedger,
			Name:      "tx_aborted_total",
			Help:      "Aborted ledger transactions.",
		}, []string{"command", "kind"})

	// TxCancelled jobs dropped while still queued
	TxCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespaceLedger,
			Name:      "tx_cancelled_total",
			Help:      "Transactions cancelled before they started.",
		})

	// QueueDepth jobs admitted and not yet finished
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespaceLedger,
			Name:      "queue_depth",
			Help:      "Admitted transactions not yet finished.",
		})

	// TxDuration time from start to commit or abort
	TxDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespaceLedger,
			Name:      "tx_duration_seconds",
			Help:      "Transaction execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"command"})

	// LastCommittedSeq sequence of the latest committed transaction
	LastCommittedSeq = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespaceLedger,
			Name:      "last_committed_seq",
			Help:      "",
		})

	// Donations accepted donations
	Donations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespaceLedger,
			Name:      "donations_total",
			Help:      "",
		})

	// CommissionBalanceEther current escrow balance in ether units
	CommissionBalanceEther = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespaceEscrow,
			Name:      "balance_ether",
			Help:      "Commission escrow balance. Approximate, for dashboards only.",
		})

	// CommissionWithdrawals escrow withdrawals
	CommissionWithdrawals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespaceEscrow,
			Name:      "withdrawals_total",
			Help:      "",
		})

	// EventsPublished events handed to the bus
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceBus,
			Name:      "published_total",
			Help:      "",
		}, []string{"event"})

	// EventsDropped events a subscriber could not take
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceBus,
			Name:      "dropped_total",
			Help:      "",
		}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(TxCommitted)
	prometheus.MustRegister(TxAborted)
	prometheus.MustRegister(TxCancelled)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(TxDuration)
	prometheus.MustRegister(LastCommittedSeq)
	prometheus.MustRegister(Donations)
	prometheus.MustRegister(CommissionBalanceEther)
	prometheus.MustRegister(CommissionWithdrawals)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsDropped)
}

// MeasureDuration measure the method execution duration
// and save it into a histogram metric
func MeasureDuration(histogram *prometheus.HistogramVec, start time.Time, lvs ...string) {
	histogram.WithLabelValues(lvs...).Observe(time.Since(start).Seconds())
}
