// Package domain holds the closed enumerations shared across the registry.
// Values are validated at the boundary; storage and services only ever see
// members of these sets.
package domain

import (
	"strings"

	dErrors "ndsregistry/pkg/domain-errors"
)

// Status is the case lifecycle state. There is no terminal state: ARCHIVED
// may be reopened through the same path as any other status change.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusClosed   Status = "CLOSED"
	StatusArchived Status = "ARCHIVED"
)

// CaseType classifies the administrative matter.
type CaseType string

const (
	CaseTypeRIndividual CaseType = "R-Individual"
	CaseTypeRDiscord    CaseType = "R-Discord"
	CaseTypeRGroup      CaseType = "R-Group"
	CaseTypeDServer     CaseType = "D-Server"
	CaseTypeRoblox      CaseType = "ROBLOX"
	CaseTypeDiscord     CaseType = "Discord"
)

// Platform is the external platform an identity or case originates from.
type Platform string

const (
	PlatformDiscord  Platform = "Discord"
	PlatformRoblox   Platform = "ROBLOX"
	PlatformExternal Platform = "External"
)

// EventType tags one audit trail entry.
type EventType string

const (
	EventCreate  EventType = "CREATE"
	EventUpdate  EventType = "UPDATE"
	EventNote    EventType = "NOTE"
	EventStatus  EventType = "STATUS"
	EventArchive EventType = "ARCHIVE"
	EventThread  EventType = "THREAD"
)

// IntelType tags one intel ledger entry.
type IntelType string

const (
	IntelAlt  IntelType = "ALT"
	IntelNote IntelType = "NOTE"
	IntelFlag IntelType = "FLAG"
)

// CaseTypes lists the closed case type set in presentation order.
func CaseTypes() []CaseType {
	return []CaseType{
		CaseTypeRIndividual, CaseTypeRDiscord, CaseTypeRGroup,
		CaseTypeDServer, CaseTypeRoblox, CaseTypeDiscord,
	}
}

// Platforms lists the closed platform set in presentation order.
func Platforms() []Platform {
	return []Platform{PlatformDiscord, PlatformRoblox, PlatformExternal}
}

// ParseStatus validates a status value, accepting any input casing.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusOpen, StatusClosed, StatusArchived:
		return s, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "invalid status: "+raw)
	}
}

// ParseCaseType validates a case type value.
func ParseCaseType(raw string) (CaseType, error) {
	ct := CaseType(strings.TrimSpace(raw))
	for _, known := range CaseTypes() {
		if ct == known {
			return ct, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid case_type: "+raw)
}

// ParsePlatform validates a platform value.
func ParsePlatform(raw string) (Platform, error) {
	p := Platform(strings.TrimSpace(raw))
	for _, known := range Platforms() {
		if p == known {
			return p, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid platform: "+raw)
}

// ParseEventType validates an operator-supplied event type. Blank input
// records a NOTE, and CREATE is reserved for case creation, so a manual
// CREATE demotes to NOTE and every trail keeps exactly one CREATE entry.
func ParseEventType(raw string) (EventType, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" || trimmed == string(EventCreate) {
		return EventNote, nil
	}
	switch et := EventType(trimmed); et {
	case EventUpdate, EventNote, EventStatus, EventArchive, EventThread:
		return et, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "invalid event_type: "+raw)
	}
}

// ParseIntelType validates an intel type value.
func ParseIntelType(raw string) (IntelType, error) {
	switch it := IntelType(strings.ToUpper(strings.TrimSpace(raw))); it {
	case IntelAlt, IntelNote, IntelFlag:
		return it, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "intel_type must be ALT/NOTE/FLAG")
	}
}
