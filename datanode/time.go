package datanode

import "time"

// nowString stamps a metadata object's "created"/"lastModified" fields with
// an RFC3339 timestamp, matching the textual timestamp format used
// throughout the Data Model's JSON objects (§3).
func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}
