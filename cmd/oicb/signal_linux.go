//go:build linux

package main

import "syscall"

// infoSignal is the signal that triggers the status line (spec §4.M, §6).
// Linux has no SIGINFO; SIGUSR1 is the conventional substitute.
const infoSignal = syscall.SIGUSR1
