// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// Marshal renders the topology as YAML
func (t *Topology) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshalling topology: %w", err)
	}

	return data, nil
}
