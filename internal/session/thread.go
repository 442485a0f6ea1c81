// ABOUTME: Thread metadata and the engine-prefixed id scheme shared by every registry operation.
// ABOUTME: Also derives display names from the first meaningful content a thread produces.

package session

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/2389/chorus/internal/schema"
)

// DefaultThreadName is assigned at creation and replaced by the first
// meaningful content the thread produces.
const DefaultThreadName = "New conversation"

// maxThreadNameRunes bounds derived names so a pasted wall of text does not
// become a sidebar entry.
const maxThreadNameRunes = 80

// Thread is the registry's per-conversation record. Item content lives in
// the registry alongside it; Thread itself is cheap to copy and every
// accessor returns it by value.
type Thread struct {
	ID          string        `json:"id"`
	WorkspaceID string        `json:"workspaceId"`
	Engine      schema.Engine `json:"engine"`
	Name        string        `json:"name"`

	// Pending marks a placeholder created before the backend assigned a
	// real session id. EnsureThread merges it into the confirmed thread.
	Pending bool `json:"pending"`

	Processing bool `json:"processing"`
	Unread     bool `json:"unread"`

	CreatedAtMs int64 `json:"createdAtMs"`
	UpdatedAtMs int64 `json:"updatedAtMs"`
}

// ThreadID builds the engine-prefixed thread id. Session ids that already
// carry the prefix pass through unchanged, so callers can hand either form
// to the registry.
func ThreadID(engine schema.Engine, sessionID string) string {
	prefix := string(engine) + ":"
	if strings.HasPrefix(sessionID, prefix) {
		return sessionID
	}
	return prefix + sessionID
}

// PendingThreadID mints a placeholder id for a thread whose backend session
// does not exist yet.
func PendingThreadID(engine schema.Engine) string {
	return string(engine) + ":pending-" + uuid.NewString()
}

// SessionID recovers the backend session id from a thread id. Engine
// backends and history loaders speak raw session ids; everything above the
// registry speaks prefixed thread ids.
func SessionID(threadID string) string {
	if _, rest, ok := strings.Cut(threadID, ":"); ok {
		return rest
	}
	return threadID
}

// deriveThreadName squeezes free-form text into a single-line display name.
// Returns "" when the text has no visible content, in which case the caller
// keeps waiting for something meaningful.
func deriveThreadName(text string) string {
	fields := strings.FieldsFunc(text, unicode.IsSpace)
	if len(fields) == 0 {
		return ""
	}
	name := strings.Join(fields, " ")
	runes := []rune(name)
	if len(runes) > maxThreadNameRunes {
		name = string(runes[:maxThreadNameRunes-1]) + "…"
	}
	return name
}
