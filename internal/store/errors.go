package store

import "errors"

var (
	ErrNotFound      = errors.New("offer not found")
	ErrInvalidState  = errors.New("offer status does not allow this action")
	ErrExpired       = errors.New("offer has expired")
	ErrRemoteFailure = errors.New("remote offer service failed")
	ErrInvalidOffer  = errors.New("invalid offer")
)
