package model

import "strings"

// redactKeep is how many trailing characters survive redaction, enough to
// correlate log lines with a record without exposing the identifier.
const redactKeep = 4

// Redact masks a member-identifying value (claim number, member ID) for log
// fields and audit metadata. Only the last few characters are kept; values
// at or below that length are fully masked.
func Redact(id string) string {
	if len(id) <= redactKeep {
		return strings.Repeat("*", len(id))
	}
	return strings.Repeat("*", len(id)-redactKeep) + id[len(id)-redactKeep:]
}
