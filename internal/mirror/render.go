package mirror

import (
	"fmt"
	"strings"

	"ndsregistry/internal/audit"
	"ndsregistry/internal/cases"
	"ndsregistry/internal/identity"
)

const timeLayout = "2006-01-02 15:04 UTC"

// ThreadTitle names the mirror thread for a case.
func ThreadTitle(d *cases.Details) string {
	return fmt.Sprintf("Case #%d: %s [%s]", d.ID, d.Identifier, d.Type)
}

// RenderBootstrap is the initial message of a freshly created mirror thread.
func RenderBootstrap(d *cases.Details) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Case #%d**\n", d.ID)
	fmt.Fprintf(&b, "User: %s\n", d.Identifier)
	fmt.Fprintf(&b, "Platform: %s\n", d.Platform)
	fmt.Fprintf(&b, "Type: %s\n", d.Type)
	fmt.Fprintf(&b, "Status: %s\n", d.Status)
	fmt.Fprintf(&b, "Reason: %s\n", d.Reason)
	fmt.Fprintf(&b, "Opened: %s", d.CreatedAt.UTC().Format(timeLayout))
	return b.String()
}

// RenderEvent projects one audit event into the thread.
func RenderEvent(e *audit.Event) string {
	return fmt.Sprintf("**%s** by %s\n%s\n`%s`",
		e.Type, e.Author, e.Message, e.CreatedAt.UTC().Format(timeLayout))
}

// RenderIntel projects one intel record into the thread.
func RenderIntel(identifier string, r *identity.IntelRecord) string {
	return fmt.Sprintf("**Intel %s** on %s by %s\n%s\n`%s`",
		r.Type, identifier, r.Author, r.Value, r.CreatedAt.UTC().Format(timeLayout))
}
