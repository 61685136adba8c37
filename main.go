// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("go-engage - Notes Engagement Ledger")
	fmt.Println("===================================")
	fmt.Println()
	fmt.Println("go-engage keeps likes and points consistent between an optimistic client")
	fmt.Println("and an authoritative PostgreSQL ledger: server-decided like toggles,")
	fmt.Println("idempotent point spends, anonymous-to-authenticated like merges and a")
	fmt.Println("dead-link validation pipeline.")
	fmt.Println()

	fmt.Println("Available Examples:")
	fmt.Println()
	fmt.Println("1. HTTP Server Example (examples/server/)")
	fmt.Println("   The full engagement API over net/http with JWT auth")
	fmt.Println("   Run: cd examples/server && go run .")
	fmt.Println()
	fmt.Println("2. Offline Client Example (examples/offline_client/)")
	fmt.Println("   SQLite-backed client: anonymous likes, merge on sign-in,")
	fmt.Println("   optimistic spends and the transient-failure replay queue")
	fmt.Println("   Run: cd examples/offline_client && go run .")
	fmt.Println()
}
