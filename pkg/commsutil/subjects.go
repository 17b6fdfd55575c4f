package commsutil

import (
	"strings"
)

// Default COMMS subjects.
const (
	SubjectRPC       = "straca.rpc"
	SubjectEventFire = "straca.caw.fire"
)

var tokenReplacer = strings.NewReplacer(" ", "_", "*", "_", ">", "_", "\t", "_", "\n", "_", "\r", "_")

// SanitizeToken makes s usable as part of a subject. Empty tokens produced by
// leading, trailing or doubled dots are replaced by "_".
func SanitizeToken(s string) string {
	s = tokenReplacer.Replace(s)
	parts := strings.Split(s, ".")
	for i, p := range parts {
		if p == "" {
			parts[i] = "_"
		}
	}
	return strings.Join(parts, ".")
}

// BuildEventSubject builds the granular subject of a fired event,
// e.g. "straca.caw.fire" + "stracatore.note" -> "straca.caw.fire.stracatore.note".
func BuildEventSubject(base, eventID string) string {
	if eventID == "" {
		return base
	}
	return base + "." + SanitizeToken(eventID)
}

// BuildServiceSubject builds the RPC subject addressing one operation.
func BuildServiceSubject(base, service, operation string) string {
	return base + "." + SanitizeToken(service) + "." + SanitizeToken(operation)
}

// ParseServiceSubject extracts service and operation from a subject built by
// BuildServiceSubject. ok is false for the bare base subject or foreign subjects.
func ParseServiceSubject(base, subject string) (service, operation string, ok bool) {
	rest, found := strings.CutPrefix(subject, base+".")
	if !found {
		return "", "", false
	}
	idx := strings.LastIndex(rest, ".")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
