package models

import "errors"

// None of these are fatal to the process; they surface as status and logs.
var (
	ErrDeviceAbsent              = errors.New("no input device attached")
	ErrChannelNotOpen            = errors.New("data channel is not open")
	ErrMalformedSignalingPayload = errors.New("malformed signaling payload")
	ErrSignalingTransportDown    = errors.New("signaling transport down")
	ErrPeerConnectionFailed      = errors.New("peer connection failed")
	ErrUnexpectedSignal          = errors.New("unexpected signaling message")
)
