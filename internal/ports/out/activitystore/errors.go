package activitystore

import "errors"

var (
	ErrActivityNotFound     = errors.New("activity not found")
	ErrActivityExists       = errors.New("activity already exists")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrRegistrationExists   = errors.New("registration already exists")
)
