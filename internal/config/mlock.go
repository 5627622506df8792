/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package config

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// lockSecret makes a best-effort attempt to keep a secret's backing
// memory out of swap. Failure is not fatal: it typically means the
// process lacks CAP_IPC_LOCK or is over RLIMIT_MEMLOCK, in which case
// the daemon still runs, just without this hardening.
func lockSecret(raw *[32]byte) {
	b := unsafe.Slice((*byte)(unsafe.Pointer(raw)), len(*raw))
	_ = unix.Mlock(b)
}
