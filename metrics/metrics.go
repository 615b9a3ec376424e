package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"studyhall/domain/events"
	eventbus "studyhall/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	bookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studyhall_bookings_created_total",
		Help: "Bookings created across all guilds on this shard",
	})
	bookingsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studyhall_bookings_cancelled_total",
		Help: "Bookings cancelled, by users or by the no-show policy",
	})
	sessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studyhall_sessions_closed_total",
		Help: "Guild sessions settled at slot close",
	})
	rewardCoinsPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studyhall_reward_coins_total",
		Help: "Total coins paid out as attendance rewards",
	})
	membersBlacklisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studyhall_members_blacklisted_total",
		Help: "Members auto-blacklisted by the no-show policy",
	})
)

// ObserveBus wires the counters to domain events
func ObserveBus(bus *eventbus.Bus) {
	bus.Subscribe(events.EventTypeBookingCreated, func(ctx context.Context, event events.Event) error {
		bookingsCreated.Inc()
		return nil
	})
	bus.Subscribe(events.EventTypeBookingCancelled, func(ctx context.Context, event events.Event) error {
		bookingsCancelled.Inc()
		return nil
	})
	bus.Subscribe(events.EventTypeSlotClosed, func(ctx context.Context, event events.Event) error {
		sessionsClosed.Inc()
		return nil
	})
	bus.Subscribe(events.EventTypeRewardPaid, func(ctx context.Context, event events.Event) error {
		if e, ok := event.(events.RewardPaidEvent); ok {
			rewardCoinsPaid.Add(float64(e.Amount))
		}
		return nil
	})
	bus.Subscribe(events.EventTypeMemberBlacklisted, func(ctx context.Context, event events.Event) error {
		membersBlacklisted.Inc()
		return nil
	})
}

// RegisterActiveSlots exposes the scheduler's live slot count as a gauge
func RegisterActiveSlots(count func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "studyhall_active_slots",
		Help: "Slots currently live on this shard",
	}, func() float64 {
		return float64(count())
	})
}

// Listen serves /metrics on the given address. Returns a stop closure.
func Listen(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.WithField("addr", addr).Info("Metrics listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics listener failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Metrics listener shutdown failed")
		}
	}
}
