// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package softserial is a container for software serial line drivers built
// on periph.io GPIO.
//
// uartrx is the receiver; bitview and traceplot render what it sees.
package softserial
