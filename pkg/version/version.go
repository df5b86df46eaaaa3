// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package version

// Version is set at build time using -ldflags "-X github.com/cloudcix/validator/pkg/version.Version=..."
var Version = "(devel)"
