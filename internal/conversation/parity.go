// ABOUTME: Structural diff between two conversation states
// ABOUTME: Proves realtime-driven and history-driven reconstructions equivalent

package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/2389/chorus/internal/schema"
)

// volatilePaths are presentation-only fields allowed to differ between a
// realtime-driven and a history-driven reconstruction of the same
// conversation. Everything else must match.
var volatilePaths = map[string]bool{
	"meta.heartbeatPulse":      true,
	"meta.historyRestoredAtMs": true,
}

// FindStateDiffs compares two conversation states structurally and returns
// the names of the sections where they diverge, sorted and deduplicated. An
// empty result means the states are equivalent up to the volatile whitelist.
//
// Both states flatten into path -> stable-JSON maps. Objects recurse into
// dotted paths; arrays and primitives become a single leaf. A path present
// on only one side counts as differing. Differing paths under items, plan,
// or userInputQueue collapse to that section name; meta paths stay specific.
func FindStateDiffs(realtime, history schema.State) []string {
	left, right := flattenState(realtime), flattenState(history)

	seen := map[string]bool{}
	for path := range left {
		seen[path] = true
	}
	for path := range right {
		seen[path] = true
	}

	diffSet := map[string]bool{}
	for path := range seen {
		if volatilePaths[path] {
			continue
		}
		lv, lok := left[path]
		rv, rok := right[path]
		if lok && rok && lv == rv {
			continue
		}
		diffSet[collapseSection(path)] = true
	}

	diffs := make([]string, 0, len(diffSet))
	for section := range diffSet {
		diffs = append(diffs, section)
	}
	sort.Strings(diffs)
	return diffs
}

// flattenState renders the state as JSON and walks it into a leaf map.
// Numbers decode as json.Number so large timestamps survive verbatim.
func flattenState(state schema.State) map[string]string {
	raw, err := json.Marshal(state)
	if err != nil {
		// States are plain data; marshaling cannot fail for real inputs.
		return map[string]string{"": fmt.Sprintf("unmarshalable: %v", err)}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return map[string]string{"": fmt.Sprintf("undecodable: %v", err)}
	}

	leaves := map[string]string{}
	flattenValue("", root, leaves)
	return leaves
}

func flattenValue(path string, value any, leaves map[string]string) {
	obj, ok := value.(map[string]any)
	if !ok {
		leaves[path] = stableString(value)
		return
	}
	for key, child := range obj {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}
		flattenValue(childPath, child, leaves)
	}
}

// stableString renders a leaf deterministically. encoding/json sorts map
// keys, so objects nested inside array leaves compare stably too.
func stableString(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("unmarshalable: %v", err)
	}
	return string(raw)
}

func collapseSection(path string) string {
	head, _, _ := strings.Cut(path, ".")
	switch head {
	case "items", "plan", "userInputQueue":
		return head
	}
	return path
}
