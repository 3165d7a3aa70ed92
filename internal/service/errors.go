package service

import "errors"

var (
	// ErrWeatherFetchFailed is returned when current conditions or the forecast cannot be fetched.
	ErrWeatherFetchFailed = errors.New("error fetching weather data")
	// ErrInvalidLocation is returned when a request names neither a city nor coordinates.
	ErrInvalidLocation = errors.New("invalid location")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidID       = errors.New("invalid id")

	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials covers both unknown users and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPersistence wraps store failures that are not the caller's fault.
	ErrPersistence = errors.New("persistence error")
)
