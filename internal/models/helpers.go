// Package models defines the data structures shared by the docchat client.
package models

import (
	"fmt"
	"strings"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// TimestampLayout is the label format shown next to each message (en-US, hour and minute).
const TimestampLayout = "03:04 PM"

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// MustRecordIDString extracts the string ID, panicking if not a string.
// Use only for IDs this client created itself.
func MustRecordIDString(id surrealmodels.RecordID) string {
	s, err := RecordIDString(id)
	if err != nil {
		panic(err)
	}
	return s
}

// FormatTimestamp renders t in the local zone as a message timestamp label.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// TruncateTitle shortens s to at most maxLen runes, appending "..." when cut.
// Whitespace runs are collapsed first so multi-line questions make usable titles.
func TruncateTitle(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return strings.TrimSpace(string(r[:maxLen-3])) + "..."
}
