// ABOUTME: Text merge laws for streamed agent output
// ABOUTME: Ordered rule lists over a comparable form - each rule independently testable

package conversation

import (
	"strings"
	"unicode"
)

// Engines stream text three different ways: pure incremental deltas, growing
// cumulative snapshots, and occasionally a "repeat the whole message"
// duplicate at completion. MergeDelta and MergeCompletion reconcile all
// three without ever silently dropping content that is not a true duplicate.
//
// Both laws compare a comparable form of the text (whitespace collapsed,
// full-width punctuation unified) but always return one of the original
// values, or their concatenation. The comparable form is never stored.

// MergeDelta merges an incoming streamed fragment into already-accumulated
// text. Rules apply in order; the first match wins:
//
//  1. empty delta keeps existing
//  2. empty existing takes delta
//  3. identical values are a no-op
//  4. delta extending existing is a cumulative snapshot: take delta
//  5. existing already containing delta as a prefix keeps existing
//  6. comparably equal values keep the longer original
//  7. comparable prefix containment keeps the superset
//  8. otherwise this is an ordinary incremental chunk: concatenate
func MergeDelta(existing, delta string) string {
	if delta == "" {
		return existing
	}
	if existing == "" {
		return delta
	}
	if delta == existing {
		return existing
	}
	if strings.HasPrefix(delta, existing) {
		return delta
	}
	if strings.HasPrefix(existing, delta) {
		return existing
	}
	ce, cd := comparableForm(existing), comparableForm(delta)
	if ce == cd {
		if len(delta) > len(existing) {
			return delta
		}
		return existing
	}
	if strings.HasPrefix(cd, ce) {
		return delta
	}
	if strings.HasPrefix(ce, cd) {
		return existing
	}
	return existing + delta
}

// MergeCompletion merges a final "message complete" payload into
// already-accumulated text. Same precedence as MergeDelta with three
// differences: a completed payload that echoes the existing content twice is
// deduplicated, ties prefer the completed value, and the fallback replaces
// rather than concatenates. Applying the same completion twice is a no-op.
func MergeCompletion(existing, completed string) string {
	if completed == "" {
		return existing
	}
	if existing == "" {
		return completed
	}
	if completed == existing {
		return existing
	}
	ce, cc := comparableForm(existing), comparableForm(completed)
	if isDoubledEcho(ce, cc) {
		return existing
	}
	if strings.HasPrefix(completed, existing) {
		return completed
	}
	if strings.HasPrefix(existing, completed) {
		return existing
	}
	if ce == cc {
		if len(existing) > len(completed) {
			return existing
		}
		return completed
	}
	if strings.HasPrefix(cc, ce) {
		return completed
	}
	if strings.HasPrefix(ce, cc) {
		return existing
	}
	return completed
}

// isDoubledEcho reports whether the completed comparable form is the
// existing comparable form repeated twice, with or without a separating
// space. Checked before prefix containment: a doubled payload starts with
// the original and would otherwise win as a superset.
func isDoubledEcho(ce, cc string) bool {
	if ce == "" {
		return false
	}
	return cc == ce+" "+ce || cc == ce+ce
}

// comparableForm collapses whitespace runs to single spaces, trims, and
// unifies full-width punctuation with its half-width form. Used only for
// equivalence checks.
func comparableForm(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
		}
		switch r {
		case '！':
			b.WriteByte('!')
		case '？':
			b.WriteByte('?')
		case '，':
			b.WriteByte(',')
		case '．', '。':
			b.WriteByte('.')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
