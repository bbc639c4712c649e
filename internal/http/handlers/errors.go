package handlers

import "errors"

var (
	errInvalidVideoID = errors.New("invalid video id")
	errInvalidBody    = errors.New("invalid request body")
)
