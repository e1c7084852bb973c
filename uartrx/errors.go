// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package uartrx

import "errors"

var (
	// ErrLineNotReady is returned when the receive pin is missing or invalid.
	// Nothing is armed in that case.
	ErrLineNotReady = errors.New("uartrx: line not ready")
	// ErrPeripheralInit is returned when the pin could not be configured for
	// falling edge detection. The driver error is wrapped.
	ErrPeripheralInit = errors.New("uartrx: peripheral init failed")
	// ErrInvalidBaudRate is returned when the baud rate yields no usable tick
	// period.
	ErrInvalidBaudRate = errors.New("uartrx: invalid baud rate")
)
