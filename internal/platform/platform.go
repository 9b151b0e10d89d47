// File: internal/platform/platform.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package platform holds the thin system-call shims behind the direct
// synchronous implementation of every operation. The same function set is
// provided on each platform; operations a platform lacks report
// api.ErrUnsupportedOperation.
package platform

import (
	"os"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/object"
)

// nativeFlags derives the handle flags common to every created resource.
func nativeFlags(o *object.Options, extra api.Flags) api.Flags {
	f := api.FlagNotNull | extra
	if o.Inheritable {
		f |= api.FlagInheritable
	}
	return f
}

// validateLaunch applies the platform independent launch checks.
func validateLaunch(p *object.LaunchProcessParams) error {
	if p.Path == "" {
		return api.ErrInvalidPath
	}
	if p.ArgumentsSize() > object.MaxProcessArguments {
		return api.ErrProcessArgumentsTooLong
	}
	if dir := p.WorkingDirectory; dir != "" {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			return api.ErrInvalidCurrentDirectory
		}
	}
	return nil
}

// validateOpenProcess rejects attempts to open the calling process.
func validateOpenProcess(p *object.OpenProcessParams) error {
	if p.Pid <= 0 {
		return api.ErrInvalidArgument
	}
	if p.Pid == os.Getpid() {
		return api.ErrProcessIsCurrentProcess
	}
	return nil
}
