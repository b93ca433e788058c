// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Blueprint is the command line companion for the Blueprint engine:
// it lints stage catalogues and manages design sessions against a
// running engine service.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
