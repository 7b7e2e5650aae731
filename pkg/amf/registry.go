// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// portRegistry records which physical ports have an open transport. A device
// cannot be addressed through two open connections, so a port may be claimed
// by at most one owner at a time.
type portRegistry struct {
	ports *xsync.MapOf[string, *Transport]
}

func newPortRegistry() *portRegistry {
	return &portRegistry{ports: xsync.NewMapOf[string, *Transport]()}
}

// ports is the process-wide registry shared by every Transport.
var ports = newPortRegistry()

// claim reserves name for owner. It fails if another owner holds it.
func (r *portRegistry) claim(name string, owner *Transport) error {
	if actual, loaded := r.ports.LoadOrStore(name, owner); loaded && actual != owner {
		return fmt.Errorf("%w: port %q is in use", ErrAlreadyConnected, name)
	}
	return nil
}

// release frees name if owner still holds it.
func (r *portRegistry) release(name string, owner *Transport) {
	r.ports.Compute(name, func(cur *Transport, loaded bool) (*Transport, bool) {
		if !loaded || cur != owner {
			return cur, !loaded
		}
		return nil, true
	})
}

// inUse reports whether name is currently claimed.
func (r *portRegistry) inUse(name string) bool {
	_, ok := r.ports.Load(name)
	return ok
}

// PortInUse reports whether the named port has an open transport in this process.
func PortInUse(name string) bool {
	return ports.inUse(name)
}
