package main

import "github.com/parkpool-dev/parkpool/internal/validator"

// Validation rules

func validateDriverID(v *validator.Validator, driverID uint) {
	v.CheckField(driverID > 0, "driverId", "must be a positive number")
}

func validateDayOfWeek(v *validator.Validator, dayOfWeek int) {
	v.CheckField(
		validator.Between(dayOfWeek, 0, 6),
		"dayOfWeek",
		"must be between 0 (Sunday) and 6 (Saturday)",
	)
}
