// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

// ServiceOptions bundles the pluggable implementations the orchestrator is
// constructed with. Hosted deployments populate it; open source uses
// DefaultOptions.
type ServiceOptions struct {
	AuthProvider AuthProvider
}

// DefaultOptions returns the open-source no-op implementations.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
	}
}

// ApplyDefaults fills any nil field with its no-op implementation, so a
// partially populated ServiceOptions is always safe to use.
func (o *ServiceOptions) ApplyDefaults() {
	if o.AuthProvider == nil {
		o.AuthProvider = &NopAuthProvider{}
	}
}
