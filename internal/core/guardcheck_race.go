// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build race

package engine

// Race-enabled builds double as debug builds: every Shared dereference
// verifies its guard is still pinned at the minting generation.
const guardChecks = true
