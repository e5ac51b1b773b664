package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/parkpool-dev/parkpool/internal/model"
)

const _absenceDateLayout = "2006-01-02"

func driverIDFromRequest(r *http.Request) (model.ID, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "driverId"))
	return model.ID(id), err
}

func spotIDFromRequest(r *http.Request) (model.ID, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "spotId"))
	return model.ID(id), err
}

func optionalIDQueryParams(r *http.Request, key string) *model.ID {
	val, ok := r.URL.Query().Get(key), r.URL.Query().Has(key)
	if !ok {
		return nil
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return nil
	}
	ref := new(model.ID)
	*ref = model.ID(intVal)
	return ref
}

func optionalIntQueryParams(r *http.Request, key string) *int {
	val, ok := r.URL.Query().Get(key), r.URL.Query().Has(key)
	if !ok {
		return nil
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return nil
	}
	ref := new(int)
	*ref = intVal
	return ref
}

func parseAbsenceDate(s string) (time.Time, error) {
	return time.Parse(_absenceDateLayout, s)
}
