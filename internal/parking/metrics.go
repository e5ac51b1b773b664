package parking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	_rolloversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parkpool_rollovers_total",
		Help: "Completed business-day rollovers.",
	})

	_ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parkpool_scheduler_ticks_total",
		Help: "Lottery scheduler ticks, quiet-window skips excluded.",
	})

	_offersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parkpool_offers_total",
		Help: "Spot offers delivered to queued drivers.",
	})

	_offersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parkpool_offers_expired_total",
		Help: "Offers that lapsed before the driver answered.",
	})

	_offerDeliveryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parkpool_offer_delivery_failures_total",
		Help: "Offers rolled back because the notification could not be delivered.",
	})
)
