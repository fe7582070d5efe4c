package service

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStateConflict    = errors.New("state conflict")
	ErrAlreadyAwarded   = errors.New("already awarded")
	ErrAlreadyDeclined  = errors.New("supplier already declined")
	ErrNotBroadcast     = errors.New("rfq was not broadcast to supplier")
	ErrHoldActive       = errors.New("another supplier holds the priority hold")
)
