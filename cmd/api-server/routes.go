package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (app *application) routes() http.Handler {
	mux := chi.NewRouter()

	mux.NotFound(app.notFound)
	mux.MethodNotAllowed(app.methodNotAllowed)

	mux.Use(app.traceID)
	mux.Use(app.logAccess)
	mux.Use(app.recoverPanic)

	mux.Use(app.CORS)

	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/api/v1", func(mux chi.Router) {
		// Day rollover is request-driven: every API call checks the
		// business day before doing anything else.
		mux.Use(app.checkCurrentDay)

		mux.Get("/status", app.handleStatus)

		mux.Post("/spots", app.handleAddSpot)
		mux.Get("/spots", app.handleListSpots)
		mux.Get("/spots/{spotId}", app.handleGetSpot)
		mux.Put("/spots/{spotId}/owners/{driverId}", app.handleAddSpotOwner)
		mux.Delete("/spots/{spotId}/owners/{driverId}", app.handleRemoveSpotOwner)
		mux.Post("/spots/{spotId}/occupy", app.handleOccupySpot)
		mux.Post("/spots/{spotId}/free", app.handleFreeSpotToday)

		mux.Post("/drivers", app.handleAddDriver)
		mux.Get("/drivers/{driverId}", app.handleGetDriver)
		mux.Put("/drivers/{driverId}/absence", app.handleSetAbsence)
		mux.Put("/drivers/{driverId}/enabled", app.handleSetEnabled)
		mux.Post("/drivers/{driverId}/leave", app.handleLeave)
		mux.Post("/drivers/{driverId}/karma-draw", app.handleKarmaDraw)

		mux.Get("/queue", app.handleListQueue)
		mux.Post("/queue", app.handleJoinQueue)
		mux.Delete("/queue/{driverId}", app.handleLeaveQueue)
		mux.Post("/queue/{driverId}/accept", app.handleAcceptOffer)
		mux.Post("/queue/{driverId}/decline", app.handleDeclineOffer)

		mux.Get("/reservations", app.handleListReservations)
		mux.Post("/reservations", app.handleAddReservation)
		mux.Delete("/reservations", app.handleDeleteReservation)

		mux.Get("/params", app.handleListParams)
		mux.Put("/params", app.handleSetParam)
		mux.Delete("/params/{key}", app.handleDeleteParam)
	})

	app.logger.Debug("routes configured", "routes", chiRoutesToStrings(mux.Routes()))

	return mux
}

func chiRoutesToStrings(routes []chi.Route) []string {
	parsedRoutes := make([]string, 0, len(routes))
	for _, route := range routes {
		parsedRoutes = append(parsedRoutes, route.Pattern)
	}
	return parsedRoutes
}
