//go:build linux

package api

import "syscall"

const errnoETIME = syscall.ETIME
