package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/parkpool-dev/parkpool/internal/ctxstore"
	"github.com/parkpool-dev/parkpool/internal/database"
	"github.com/parkpool-dev/parkpool/internal/model"
	"github.com/parkpool-dev/parkpool/internal/parking"
	"github.com/parkpool-dev/parkpool/internal/request"
	"github.com/parkpool-dev/parkpool/internal/response"
	"github.com/parkpool-dev/parkpool/internal/validator"
)

func (app *application) requestLogger(r *http.Request) *slog.Logger {
	return app.logger.With(
		_traceIDKey.String(), ctxstore.MustFrom[string](r.Context(), _traceIDKey),
	)
}

func (app *application) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dao := database.NewParamDAO(app.requestLogger(r), app.db)

	isWorkingDay, err := dao.Get(ctx, parking.ParamCurrentDayIsWorkingDay, "true")
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	holiday, err := dao.Get(ctx, parking.ParamCurrentDayHoliday, "")
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	data := response.JSONObject{
		"status":       "OK",
		"currentDay":   currentDay(r).Format(_absenceDateLayout),
		"isWorkingDay": isWorkingDay == "true",
		"holiday":      holiday,
	}

	if err := response.JSON(w, http.StatusOK, data); err != nil {
		app.serverError(w, r, err)
	}
}

type requestAddSpot struct {
	ID uint `json:"id"`
}

func (app *application) handleAddSpot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input requestAddSpot
	if err := request.DecodeJSONStrict(w, r, &input); err != nil {
		app.badRequest(w, r, err)
		return
	}

	var v validator.Validator
	v.CheckField(input.ID > 0, "id", "must be a positive number")
	if v.HasErrors() {
		app.failedValidation(w, r, v)
		return
	}

	dao := database.NewSpotDAO(app.requestLogger(r), app.db)

	if err := dao.Insert(ctx, model.ID(input.ID)); err != nil {
		if errors.Is(err, model.ErrExists) {
			app.errorMessage(w, r, http.StatusConflict, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	spot, err := dao.Get(ctx, model.ID(input.ID))
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	if err := response.JSON(w, http.StatusCreated, response.JSONObject{"spot": spot}); err != nil {
		app.serverError(w, r, err)
	}
}

func (app *application) handleListSpots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := app.requestLogger(r)

	spots, err := database.NewSpotDAO(logger, app.db).All(ctx)
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	reservations, err := database.NewReservationDAO(logger, app.db).ByDay(ctx, currentDay(r))
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	data := response.JSONObject{
		"spots":        spots,
		"reservations": reservations,
	}

	if err := response.JSON(w, http.StatusOK, data); err != nil {
		app.serverError(w, r, err)
	}
}

func (app *application) handleGetSpot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	spotID, err := spotIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	dao := database.NewSpotDAO(app.requestLogger(r), app.db)

	spot, err := dao.Get(ctx, spotID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	ownerIDs, err := dao.OwnerIDs(ctx, spotID)
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	data := response.JSONObject{
		"spot":     spot,
		"ownerIds": ownerIDs,
	}

	if err := response.JSON(w, http.StatusOK, data); err != nil {
		app.serverError(w, r, err)
	}
}

func (app *application) handleAddSpotOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	spotID, err := spotIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}
	driverID, err := driverIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	dao := database.NewSpotDAO(app.requestLogger(r), app.db)

	if err := dao.AddOwner(ctx, spotID, driverID); err != nil {
		switch {
		case errors.Is(err, model.ErrExists):
			app.errorMessage(w, r, http.StatusConflict, err.Error(), nil)
		case errors.Is(err, model.ErrNotFound):
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
		default:
			app.serverError(w, r, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (app *application) handleRemoveSpotOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	spotID, err := spotIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}
	driverID, err := driverIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	dao := database.NewSpotDAO(app.requestLogger(r), app.db)

	if err := dao.RemoveOwner(ctx, spotID, driverID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type requestOccupySpot struct {
	DriverID     uint `json:"driverId"`
	WithoutClaim bool `json:"withoutClaim"`
}

func (app *application) handleOccupySpot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	spotID, err := spotIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	var input requestOccupySpot
	if err := request.DecodeJSONStrict(w, r, &input); err != nil {
		app.badRequest(w, r, err)
		return
	}

	var v validator.Validator
	validateDriverID(&v, input.DriverID)
	if v.HasErrors() {
		app.failedValidation(w, r, v)
		return
	}

	driverID := model.ID(input.DriverID)

	if err := app.engine.Occupy(ctx, driverID, spotID, input.WithoutClaim); err != nil {
		switch {
		case errors.Is(err, model.ErrConflict):
			// The spot went to somebody else; offer the loser a queue
			// place instead.
			queued := app.requeueLoser(ctx, r, driverID)

			data := response.JSONObject{
				"error":  "Spot is already taken",
				"queued": queued,
			}
			if err := response.JSON(w, http.StatusConflict, data); err != nil {
				app.serverError(w, r, err)
			}
		case errors.Is(err, model.ErrNotFound):
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
		default:
			app.serverError(w, r, err)
		}
		return
	}

	spot, err := database.NewSpotDAO(app.requestLogger(r), app.db).Get(ctx, spotID)
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	if err := response.JSON(w, http.StatusOK, response.JSONObject{"spot": spot}); err != nil {
		app.serverError(w, r, err)
	}
}

func (app *application) requeueLoser(ctx context.Context, r *http.Request, driverID model.ID) bool {
	_, err := app.engine.JoinQueue(ctx, driverID)
	switch {
	case err == nil, errors.Is(err, model.ErrExists):
		return true
	default:
		app.requestLogger(r).Warn("failed to queue driver after occupy conflict", "driverId", driverID, "error", err)
		return false
	}
}

type requestFreeSpot struct {
	DriverID uint `json:"driverId"`
}

func (app *application) handleFreeSpotToday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	spotID, err := spotIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	var input requestFreeSpot
	if err := request.DecodeJSONStrict(w, r, &input); err != nil {
		app.badRequest(w, r, err)
		return
	}

	var v validator.Validator
	validateDriverID(&v, input.DriverID)
	if v.HasErrors() {
		app.failedValidation(w, r, v)
		return
	}

	if err := app.engine.FreeToday(ctx, model.ID(input.DriverID), spotID); err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, model.ErrConflict):
			app.errorMessage(w, r, http.StatusConflict, err.Error(), nil)
		default:
			app.serverError(w, r, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type requestAddDriver struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

func (app *application) handleAddDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input requestAddDriver
	if err := request.DecodeJSONStrict(w, r, &input); err != nil {
		app.badRequest(w, r, err)
		return
	}

	var v validator.Validator
	v.CheckField(validator.NotBlank(input.Username), "username", "cannot be blank")
	v.CheckField(validator.NotBlank(input.FullName), "fullName", "cannot be blank")
	if v.HasErrors() {
		app.failedValidation(w, r, v)
		return
	}

	dao := database.NewDriverDAO(app.requestLogger(r), app.db)

	driverID, err := dao.Insert(ctx, database.InsertDriverDTO{
		Username: input.Username,
		FullName: input.FullName,
	})
	if err != nil {
		if errors.Is(err, model.ErrExists) {
			app.errorMessage(w, r, http.StatusConflict, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	driver, err := dao.Get(ctx, driverID)
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	if err := response.JSON(w, http.StatusCreated, response.JSONObject{"driver": driver}); err != nil {
		app.serverError(w, r, err)
	}
}

func (app *application) handleGetDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	driverID, err := driverIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	driver, err := database.NewDriverDAO(app.requestLogger(r), app.db).Get(ctx, driverID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	if err := response.JSON(w, http.StatusOK, response.JSONObject{"driver": driver}); err != nil {
		app.serverError(w, r, err)
	}
}

type requestSetAbsence struct {
	AbsentUntil *string `json:"absentUntil"`
}

func (app *application) handleSetAbsence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	driverID, err := driverIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	var input requestSetAbsence
	if err := request.DecodeJSONStrict(w, r, &input); err != nil {
		app.badRequest(w, r, err)
		return
	}

	var absentUntil *time.Time
	if input.AbsentUntil != nil {
		date, err := parseAbsenceDate(*input.AbsentUntil)
		if err != nil {
			app.badRequest(w, r, err)
			return
		}
		absentUntil = &date
	}

	dao := database.NewDriverDAO(app.requestLogger(r), app.db)

	if err := dao.SetAbsentUntil(ctx, driverID, absentUntil); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type requestSetEnabled struct {
	Enabled bool `json:"enabled"`
}

func (app *application) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	driverID, err := driverIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	var input requestSetEnabled
	if err := request.DecodeJSONStrict(w, r, &input); err != nil {
		app.badRequest(w, r, err)
		return
	}

	dao := database.NewDriverDAO(app.requestLogger(r), app.db)

	if err := dao.SetEnabled(ctx, driverID, input.Enabled); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (app *application) handleLeave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	driverID, err := driverIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	spots, err := app.engine.Release(ctx, driverID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	if err := response.JSON(w, http.StatusOK, response.JSONObject{"released": spots}); err != nil {
		app.serverError(w, r, err)
	}
}

func (app *application) handleKarmaDraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	driverID, err := driverIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	value, karma, err := app.engine.DrawKarma(ctx, driverID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, model.ErrConflict):
			app.errorMessage(w, r, http.StatusConflict, "Karma draw already taken today", nil)
		default:
			app.serverError(w, r, err)
		}
		return
	}

	data := response.JSONObject{
		"value": value,
		"karma": karma,
	}

	if err := response.JSON(w, http.StatusOK, data); err != nil {
		app.serverError(w, r, err)
	}
}

func (app *application) handleListQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := database.NewQueueDAO(app.requestLogger(r), app.db).All(ctx)
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	if err := response.JSON(w, http.StatusOK, response.JSONObject{"queue": entries}); err != nil {
		app.serverError(w, r, err)
	}
}

type requestJoinQueue struct {
	DriverID uint `json:"driverId"`
}

func (app *application) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input requestJoinQueue
	if err := request.DecodeJSONStrict(w, r, &input); err != nil {
		app.badRequest(w, r, err)
		return
	}

	var v validator.Validator
	validateDriverID(&v, input.DriverID)
	if v.HasErrors() {
		app.failedValidation(w, r, v)
		return
	}

	entryID, err := app.engine.JoinQueue(ctx, model.ID(input.DriverID))
	if err != nil {
		switch {
		case errors.Is(err, model.ErrExists), errors.Is(err, model.ErrConflict):
			app.errorMessage(w, r, http.StatusConflict, err.Error(), nil)
		case errors.Is(err, model.ErrNotFound):
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
		default:
			app.serverError(w, r, err)
		}
		return
	}

	if err := response.JSON(w, http.StatusCreated, response.JSONObject{"entryId": entryID}); err != nil {
		app.serverError(w, r, err)
	}
}

func (app *application) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	driverID, err := driverIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	if err := app.engine.LeaveQueue(ctx, driverID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (app *application) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	driverID, err := driverIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	spotID, err := app.engine.AcceptOffer(ctx, driverID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, model.ErrConflict):
			app.errorMessage(w, r, http.StatusConflict, "Spot is already taken, you stay in the queue", nil)
		default:
			app.serverError(w, r, err)
		}
		return
	}

	if err := response.JSON(w, http.StatusOK, response.JSONObject{"spotId": spotID}); err != nil {
		app.serverError(w, r, err)
	}
}

func (app *application) handleDeclineOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	driverID, err := driverIDFromRequest(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	if err := app.engine.DeclineOffer(ctx, driverID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (app *application) handleListReservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := database.FindReservationFilter{
		DriverID:  optionalIDQueryParams(r, "driverId"),
		SpotID:    optionalIDQueryParams(r, "spotId"),
		DayOfWeek: optionalIntQueryParams(r, "dayOfWeek"),
	}

	reservations, err := database.NewReservationDAO(app.requestLogger(r), app.db).Find(ctx, filter)
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	if err := response.JSON(w, http.StatusOK, response.JSONObject{"reservations": reservations}); err != nil {
		app.serverError(w, r, err)
	}
}

type requestAddReservation struct {
	DriverID  uint `json:"driverId"`
	SpotID    uint `json:"spotId"`
	DayOfWeek int  `json:"dayOfWeek"`
}

func (app *application) handleAddReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input requestAddReservation
	if err := request.DecodeJSONStrict(w, r, &input); err != nil {
		app.badRequest(w, r, err)
		return
	}

	var v validator.Validator
	validateDriverID(&v, input.DriverID)
	v.CheckField(input.SpotID > 0, "spotId", "must be a positive number")
	validateDayOfWeek(&v, input.DayOfWeek)
	if v.HasErrors() {
		app.failedValidation(w, r, v)
		return
	}

	dao := database.NewReservationDAO(app.requestLogger(r), app.db)

	reservationID, err := dao.Insert(ctx, database.InsertReservationDTO{
		DriverID:  model.ID(input.DriverID),
		SpotID:    model.ID(input.SpotID),
		DayOfWeek: input.DayOfWeek,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrExists):
			app.errorMessage(w, r, http.StatusConflict, err.Error(), nil)
		case errors.Is(err, model.ErrNotFound):
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
		default:
			app.serverError(w, r, err)
		}
		return
	}

	if err := response.JSON(w, http.StatusCreated, response.JSONObject{"reservationId": reservationID}); err != nil {
		app.serverError(w, r, err)
	}
}

func (app *application) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	driverID := optionalIDQueryParams(r, "driverId")
	spotID := optionalIDQueryParams(r, "spotId")
	dayOfWeek := optionalIntQueryParams(r, "dayOfWeek")

	var v validator.Validator
	v.CheckField(driverID != nil, "driverId", "is required")
	v.CheckField(spotID != nil, "spotId", "is required")
	v.CheckField(dayOfWeek != nil, "dayOfWeek", "is required")
	if dayOfWeek != nil {
		validateDayOfWeek(&v, *dayOfWeek)
	}
	if v.HasErrors() {
		app.failedValidation(w, r, v)
		return
	}

	dao := database.NewReservationDAO(app.requestLogger(r), app.db)

	if err := dao.Delete(ctx, *driverID, *spotID, *dayOfWeek); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (app *application) handleListParams(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := database.NewParamDAO(app.requestLogger(r), app.db).All(ctx)
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	if err := response.JSON(w, http.StatusOK, response.JSONObject{"params": params}); err != nil {
		app.serverError(w, r, err)
	}
}

type requestSetParam struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

func (app *application) handleSetParam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input requestSetParam
	if err := request.DecodeJSONStrict(w, r, &input); err != nil {
		app.badRequest(w, r, err)
		return
	}

	var v validator.Validator
	v.CheckField(validator.NotBlank(input.Key), "key", "cannot be blank")
	if v.HasErrors() {
		app.failedValidation(w, r, v)
		return
	}

	dao := database.NewParamDAO(app.requestLogger(r), app.db)

	if err := dao.Set(ctx, input.Key, input.Value, input.Description); err != nil {
		app.serverError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (app *application) handleDeleteParam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key := chi.URLParam(r, "key")

	dao := database.NewParamDAO(app.requestLogger(r), app.db)

	if err := dao.Delete(ctx, key); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			app.errorMessage(w, r, http.StatusNotFound, err.Error(), nil)
			return
		}

		app.serverError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
