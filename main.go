// Command curator submits curation analysis jobs and tracks their progress
// across restarts.
//
// Usage:
//
//	curator analyze products --limit 25
//	curator analyze posts --id 12 --id 31
//	curator resume
//	curator status
//	curator serve
//
// Configuration comes from an optional YAML file (--config) overlaid with
// CURATOR_* environment variables, e.g. CURATOR_API_BASE_URL or
// CURATOR_STORAGE_BACKEND=redis.
package main

import (
	"github.com/JakeFAU/curation-tracker/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
