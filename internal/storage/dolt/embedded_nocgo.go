//go:build !cgo

package dolt

import (
	"context"
	"errors"
)

// newEmbeddedMode needs the in-process Dolt engine, which is only
// available in CGO builds. Server mode works regardless.
func newEmbeddedMode(_ context.Context, _ *Config) (*DoltStore, error) {
	return nil, errors.New("dolt: embedded mode requires a cgo build; use server mode instead")
}
