// ABOUTME: Item-level reduction for registry threads: segments, review dedup, reasoning compaction.
// ABOUTME: Builds on the conversation merge laws; nothing here discards engine-authored text.

package session

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/2389/chorus/internal/conversation"
	"github.com/2389/chorus/internal/schema"
)

// shortBurstRunes is the size at or below which a reasoning burst counts as
// a fragment rather than a sentence. Boundaries between two fragments are
// engine flush artifacts, not paragraph breaks.
const shortBurstRunes = 4

// Items returns deep copies of the thread's items in order.
func (r *Registry) Items(threadID string) []schema.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ts, ok := r.threads[threadID]
	if !ok || len(ts.items) == 0 {
		return nil
	}
	items := make([]schema.Item, len(ts.items))
	for i, it := range ts.items {
		items[i] = it.Clone()
	}
	return items
}

// Plan returns a copy of the thread's plan, or nil when none is set.
func (r *Registry) Plan(threadID string) *schema.TurnPlan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return nil
	}
	return ts.plan.Clone()
}

// SetPlan replaces the thread's plan. A thread holds at most one plan; each
// update supersedes the previous one. Passing nil clears it.
func (r *Registry) SetPlan(threadID string, plan *schema.TurnPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("set plan %s: %w", threadID, ErrThreadNotFound)
	}
	ts.plan = plan.Clone()
	r.touch(ts)
	return nil
}

// UpsertItem inserts or replaces an item by id, preserving its position.
// Review items get content-based treatment instead: an exact repeat of any
// existing review is dropped, while a same-id review whose state or text
// changed lands as a new suffixed row, because review transitions are
// history rather than corrections.
func (r *Registry) UpsertItem(threadID string, item schema.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("upsert item %s: %w", threadID, ErrThreadNotFound)
	}

	if item.Kind == schema.ItemKindReview && item.Review != nil {
		r.upsertReview(ts, item)
	} else {
		ts.items = conversation.UpsertItem(ts.items, item)
		if item.Kind == schema.ItemKindMessage && item.Message != nil && item.Message.Role == schema.RoleUser {
			r.maybeNameThread(ts, item.Message.Text)
		}
	}
	r.touch(ts)
	return nil
}

func (r *Registry) upsertReview(ts *threadState, item schema.Item) {
	// A review with the same state and text as any existing row is the same
	// review observed again, whatever id it arrived under. The earliest row
	// stands.
	for i := range ts.items {
		existing := ts.items[i]
		if existing.Kind == schema.ItemKindReview && existing.Review != nil &&
			existing.Review.State == item.Review.State &&
			existing.Review.Text == item.Review.Text {
			return
		}
	}

	if idx := indexOfItem(ts.items, item.ID); idx >= 0 {
		// Same id, different content: record the transition as a new row
		// under the first free suffixed id.
		clone := item.Clone()
		clone.ID = r.freeReviewID(ts, item.ID)
		ts.items = append(ts.items, clone)
		return
	}
	ts.items = append(ts.items, item.Clone())
}

func (r *Registry) freeReviewID(ts *threadState, base string) string {
	for n := 1; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if indexOfItem(ts.items, candidate) < 0 {
			return candidate
		}
	}
}

// AppendAssistantDelta merges streamed text into the current segment of the
// assistant message identified by messageID.
func (r *Registry) AppendAssistantDelta(threadID, messageID, delta string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("append delta %s: %w", threadID, ErrThreadNotFound)
	}

	id := r.segmentID(ts, messageID)
	idx := indexOfItem(ts.items, id)
	if idx < 0 {
		ts.items = append(ts.items, schema.Item{
			ID:      id,
			Kind:    schema.ItemKindMessage,
			Message: &schema.MessageItem{Role: schema.RoleAssistant, Text: delta},
		})
	} else {
		it := ts.items[idx]
		if it.Kind != schema.ItemKindMessage || it.Message == nil {
			return nil
		}
		clone := it.Clone()
		clone.Message.Text = conversation.MergeDelta(clone.Message.Text, delta)
		ts.items[idx] = clone
	}

	if !r.hasUserMessage(ts) {
		r.maybeNameThread(ts, r.segmentText(ts, id))
	}
	r.touch(ts)
	return nil
}

// CompleteAssistantMessage reconciles the final text for the current segment
// and records the completion time for race-window checks.
func (r *Registry) CompleteAssistantMessage(threadID, messageID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("complete message %s: %w", threadID, ErrThreadNotFound)
	}

	id := r.segmentID(ts, messageID)
	idx := indexOfItem(ts.items, id)
	if idx < 0 {
		ts.items = append(ts.items, schema.Item{
			ID:      id,
			Kind:    schema.ItemKindMessage,
			Message: &schema.MessageItem{Role: schema.RoleAssistant, Text: text},
		})
	} else {
		it := ts.items[idx]
		if it.Kind != schema.ItemKindMessage || it.Message == nil {
			return nil
		}
		clone := it.Clone()
		clone.Message.Text = conversation.MergeCompletion(clone.Message.Text, text)
		ts.items[idx] = clone
	}

	ts.lastCompletedAtMs = r.nowMs()
	r.touch(ts)
	return nil
}

// AdvanceMessageSegment closes the current segment of a streamed assistant
// message so the next delta starts a fresh item. Advancing past a segment
// that never received text is a no-op.
func (r *Registry) AdvanceMessageSegment(threadID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("advance segment %s: %w", threadID, ErrThreadNotFound)
	}
	if indexOfItem(ts.items, r.segmentID(ts, messageID)) < 0 {
		return nil
	}
	ts.segments[messageID]++
	return nil
}

// segmentID names the current segment: the source id itself for the first
// segment, then "-seg-N" suffixes.
func (r *Registry) segmentID(ts *threadState, messageID string) string {
	n := ts.segments[messageID]
	if n == 0 {
		return messageID
	}
	return fmt.Sprintf("%s-seg-%d", messageID, n)
}

func (r *Registry) segmentText(ts *threadState, id string) string {
	idx := indexOfItem(ts.items, id)
	if idx < 0 || ts.items[idx].Message == nil {
		return ""
	}
	return ts.items[idx].Message.Text
}

// NoteReasoningBoundary marks that the reasoning item's next summary burst
// follows a boundary. Whether that boundary becomes a paragraph break is
// decided when the burst arrives.
func (r *Registry) NoteReasoningBoundary(threadID, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("reasoning boundary %s: %w", threadID, ErrThreadNotFound)
	}
	ts.pendingBoundary[itemID] = true
	return nil
}

// AppendReasoningSummary accumulates a summary-channel burst. A pending
// boundary normally inserts a blank line first, but a boundary wedged
// between two fragment-sized bursts is an engine flush artifact and the
// bursts glue back together.
func (r *Registry) AppendReasoningSummary(threadID, itemID, delta string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("reasoning summary %s: %w", threadID, ErrThreadNotFound)
	}
	if delta == "" {
		return nil
	}

	idx := indexOfItem(ts.items, itemID)
	if idx < 0 {
		delete(ts.pendingBoundary, itemID)
		ts.items = append(ts.items, schema.Item{
			ID:        itemID,
			Kind:      schema.ItemKindReasoning,
			Reasoning: &schema.ReasoningItem{Summary: delta},
		})
		r.touch(ts)
		return nil
	}

	it := ts.items[idx]
	if it.Kind != schema.ItemKindReasoning || it.Reasoning == nil {
		return nil
	}
	clone := it.Clone()
	if ts.pendingBoundary[itemID] {
		delete(ts.pendingBoundary, itemID)
		clone.Reasoning.Summary = joinAcrossBoundary(clone.Reasoning.Summary, delta)
	} else {
		clone.Reasoning.Summary = conversation.MergeDelta(clone.Reasoning.Summary, delta)
	}
	ts.items[idx] = clone
	r.touch(ts)
	return nil
}

// AppendReasoningContent accumulates a content-channel burst and compacts
// the result, re-flowing fragment paragraphs the engine split mid-sentence.
func (r *Registry) AppendReasoningContent(threadID, itemID, delta string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("reasoning content %s: %w", threadID, ErrThreadNotFound)
	}
	if delta == "" {
		return nil
	}

	idx := indexOfItem(ts.items, itemID)
	if idx < 0 {
		ts.items = append(ts.items, schema.Item{
			ID:        itemID,
			Kind:      schema.ItemKindReasoning,
			Reasoning: &schema.ReasoningItem{Content: compactReasoning(delta)},
		})
		r.touch(ts)
		return nil
	}

	it := ts.items[idx]
	if it.Kind != schema.ItemKindReasoning || it.Reasoning == nil {
		return nil
	}
	clone := it.Clone()
	clone.Reasoning.Content = compactReasoning(conversation.MergeDelta(clone.Reasoning.Content, delta))
	ts.items[idx] = clone
	r.touch(ts)
	return nil
}

// AppendToolOutput merges streamed output into a tool item, creating a
// running tool when the output races ahead of the item snapshot.
func (r *Registry) AppendToolOutput(threadID, itemID, delta string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("tool output %s: %w", threadID, ErrThreadNotFound)
	}

	idx := indexOfItem(ts.items, itemID)
	if idx < 0 {
		ts.items = append(ts.items, schema.Item{
			ID:   itemID,
			Kind: schema.ItemKindTool,
			Tool: &schema.ToolItem{Status: schema.ToolRunning, Output: delta},
		})
		r.touch(ts)
		return nil
	}

	it := ts.items[idx]
	if it.Kind != schema.ItemKindTool || it.Tool == nil {
		return nil
	}
	clone := it.Clone()
	clone.Tool.Output = conversation.MergeDelta(clone.Tool.Output, delta)
	ts.items[idx] = clone
	r.touch(ts)
	return nil
}

// FinalizePendingToolStatuses sweeps every tool item that never reported a
// terminal status and stamps it with the given one. Used when a turn ends or
// a session dies with tools still showing as running. Returns the number of
// items finalized.
func (r *Registry) FinalizePendingToolStatuses(threadID string, status schema.ToolStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return 0
	}
	if !status.Terminal() {
		status = schema.ToolCompleted
	}

	finalized := 0
	for i := range ts.items {
		it := ts.items[i]
		if it.Kind != schema.ItemKindTool || it.Tool == nil || it.Tool.Status.Terminal() {
			continue
		}
		clone := it.Clone()
		clone.Tool.Status = status
		ts.items[i] = clone
		finalized++
	}
	if finalized > 0 {
		r.logger.Debug("finalized pending tool statuses",
			"thread_id", threadID,
			"status", status,
			"count", finalized,
		)
		r.touch(ts)
	}
	return finalized
}

// maybeNameThread replaces a default thread name with one derived from the
// first meaningful content. Callers hold the lock.
func (r *Registry) maybeNameThread(ts *threadState, text string) {
	if ts.meta.Name != DefaultThreadName {
		return
	}
	name := deriveThreadName(text)
	if name == "" {
		return
	}
	ts.meta.Name = name
	r.logger.Debug("thread named",
		"thread_id", ts.meta.ID,
		"name", name,
	)
}

func (r *Registry) hasUserMessage(ts *threadState) bool {
	for i := range ts.items {
		it := ts.items[i]
		if it.Kind == schema.ItemKindMessage && it.Message != nil && it.Message.Role == schema.RoleUser {
			return true
		}
	}
	return false
}

func indexOfItem(items []schema.Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// joinAcrossBoundary applies a boundary between the accumulated summary and
// the next burst. Two fragment-sized bursts concatenate directly; anything
// longer gets a real paragraph break.
func joinAcrossBoundary(summary, burst string) string {
	if summary == "" {
		return burst
	}
	last := summary
	if i := strings.LastIndex(summary, "\n\n"); i >= 0 {
		last = summary[i+2:]
	}
	if isFragmentBurst(last) && isFragmentBurst(burst) {
		return summary + burst
	}
	return summary + "\n\n" + burst
}

func isFragmentBurst(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) <= shortBurstRunes
}

// compactReasoning re-flows reasoning content whose engine emitted blank-line
// separators mid-sentence. A paragraph that stops without terminal
// punctuation continues into the next one, unless either side is a Markdown
// block (list item, blockquote, heading, fence, table row), which keeps its
// own line.
func compactReasoning(text string) string {
	paras := strings.Split(text, "\n\n")
	if len(paras) < 2 {
		return text
	}
	out := paras[:1]
	for _, p := range paras[1:] {
		prev := out[len(out)-1]
		if joinsPrevious(prev, p) {
			out[len(out)-1] = prev + " " + p
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "\n\n")
}

func joinsPrevious(prev, next string) bool {
	if prev == "" || next == "" {
		return false
	}
	if startsMarkdownBlock(next) {
		return false
	}
	if lastLineStartsMarkdownBlock(prev) {
		return false
	}
	return !endsSentence(prev)
}

func lastLineStartsMarkdownBlock(p string) bool {
	if i := strings.LastIndexByte(p, '\n'); i >= 0 {
		p = p[i+1:]
	}
	return startsMarkdownBlock(p)
}

func startsMarkdownBlock(p string) bool {
	s := strings.TrimLeft(p, " \t")
	if s == "" {
		return false
	}
	switch {
	case strings.HasPrefix(s, "- "), strings.HasPrefix(s, "* "), strings.HasPrefix(s, "+ "):
		return true
	case strings.HasPrefix(s, "> "), strings.HasPrefix(s, "#"):
		return true
	case strings.HasPrefix(s, "```"), strings.HasPrefix(s, "|"):
		return true
	}
	// Ordered list markers: digits followed by "." or ")".
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return true
	}
	return false
}

// endsSentence reports whether the paragraph ends with terminal punctuation,
// ignoring trailing quotes and closing brackets.
func endsSentence(p string) bool {
	trimmed := strings.TrimRight(p, " \t")
	trimmed = strings.TrimRight(trimmed, "\"')]}»”’」』）")
	if trimmed == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	switch last {
	case '.', '!', '?', ':', ';', '…', '。', '！', '？', '：', '；':
		return true
	}
	return false
}
