// ABOUTME: ConversationItem tagged union and its per-kind payload types
// ABOUTME: One Kind per item with exactly one non-nil payload pointer

package schema

// ItemKind discriminates the Item union.
type ItemKind string

const (
	ItemKindMessage   ItemKind = "message"
	ItemKindReasoning ItemKind = "reasoning"
	ItemKindDiff      ItemKind = "diff"
	ItemKindReview    ItemKind = "review"
	ItemKindExplore   ItemKind = "explore"
	ItemKindTool      ItemKind = "tool"
)

// Role identifies the author of a message item.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ReviewState tracks a review item's lifecycle.
type ReviewState string

const (
	ReviewStarted   ReviewState = "started"
	ReviewCompleted ReviewState = "completed"
)

// ExploreStatus tracks an explore item's lifecycle.
type ExploreStatus string

const (
	ExploreExploring ExploreStatus = "exploring"
	ExploreExplored  ExploreStatus = "explored"
)

// ExploreEntryKind categorizes one step of an exploration trail.
type ExploreEntryKind string

const (
	ExploreRead   ExploreEntryKind = "read"
	ExploreSearch ExploreEntryKind = "search"
	ExploreList   ExploreEntryKind = "list"
	ExploreRun    ExploreEntryKind = "run"
)

// ToolStatus tracks a tool item's lifecycle. The empty string means the
// engine has not reported a status yet.
type ToolStatus string

const (
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
)

// Terminal reports whether the status is a final one.
func (s ToolStatus) Terminal() bool {
	return s == ToolCompleted || s == ToolFailed
}

// Item is one entry in a thread's conversation. Exactly one payload pointer
// matching Kind is non-nil.
type Item struct {
	ID   string   `json:"id"`
	Kind ItemKind `json:"kind"`

	Message   *MessageItem   `json:"message,omitempty"`
	Reasoning *ReasoningItem `json:"reasoning,omitempty"`
	Diff      *DiffItem      `json:"diff,omitempty"`
	Review    *ReviewItem    `json:"review,omitempty"`
	Explore   *ExploreItem   `json:"explore,omitempty"`
	Tool      *ToolItem      `json:"tool,omitempty"`
}

// MessageItem is a user or assistant message.
type MessageItem struct {
	Role   Role     `json:"role"`
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
}

// ReasoningItem carries the two reasoning channels. Summary and Content
// accumulate independently; engines stream them as separate delta kinds.
type ReasoningItem struct {
	Summary string `json:"summary"`
	Content string `json:"content"`
}

// DiffItem is a unified diff produced by the agent.
type DiffItem struct {
	Patch string `json:"patch"`
}

// ReviewItem is one review pass. State transitions are meaningful history:
// a same-ID review with changed state or text is recorded as a new row, not
// an in-place correction.
type ReviewItem struct {
	State ReviewState `json:"state"`
	Text  string      `json:"text"`
}

// ExploreEntry is one step of an exploration trail.
type ExploreEntry struct {
	Kind  ExploreEntryKind `json:"kind"`
	Label string           `json:"label"`
}

// ExploreItem is a codebase exploration block.
type ExploreItem struct {
	Status  ExploreStatus  `json:"status"`
	Entries []ExploreEntry `json:"entries"`
}

// FileChange summarizes one file touched by a tool invocation.
type FileChange struct {
	Path    string `json:"path"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// ToolItem is a tool invocation and its observed effects.
type ToolItem struct {
	ToolType    string       `json:"toolType"`
	Title       string       `json:"title"`
	Detail      string       `json:"detail,omitempty"`
	Status      ToolStatus   `json:"status,omitempty"`
	Output      string       `json:"output,omitempty"`
	DurationMs  int64        `json:"durationMs,omitempty"`
	FileChanges []FileChange `json:"fileChanges,omitempty"`
}

// Clone returns a deep copy of the item. Reducers clone before mutating so
// prior states stay intact.
func (it Item) Clone() Item {
	out := it
	switch {
	case it.Message != nil:
		m := *it.Message
		m.Images = append([]string(nil), it.Message.Images...)
		out.Message = &m
	case it.Reasoning != nil:
		r := *it.Reasoning
		out.Reasoning = &r
	case it.Diff != nil:
		d := *it.Diff
		out.Diff = &d
	case it.Review != nil:
		r := *it.Review
		out.Review = &r
	case it.Explore != nil:
		e := *it.Explore
		e.Entries = append([]ExploreEntry(nil), it.Explore.Entries...)
		out.Explore = &e
	case it.Tool != nil:
		t := *it.Tool
		t.FileChanges = append([]FileChange(nil), it.Tool.FileChanges...)
		out.Tool = &t
	}
	return out
}
