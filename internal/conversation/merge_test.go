// ABOUTME: Tests for the delta-merge and completion-merge laws
// ABOUTME: Each precedence rule is pinned by at least one case

package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeDelta_Rules(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		delta    string
		want     string
	}{
		{
			name:     "empty delta keeps existing",
			existing: "Hello",
			delta:    "",
			want:     "Hello",
		},
		{
			name:     "empty existing takes delta",
			existing: "",
			delta:    "Hello",
			want:     "Hello",
		},
		{
			name:     "identical values are a no-op",
			existing: "Hello",
			delta:    "Hello",
			want:     "Hello",
		},
		{
			name:     "cumulative snapshot wins over shorter accumulation",
			existing: "你好！",
			delta:    "你好！有什么可以帮你的吗？",
			want:     "你好！有什么可以帮你的吗？",
		},
		{
			name:     "existing already containing delta keeps existing",
			existing: "Hello world",
			delta:    "Hello",
			want:     "Hello world",
		},
		{
			name:     "incremental chunk concatenates",
			existing: "Hello ",
			delta:    "world",
			want:     "Hello world",
		},
		{
			name:     "comparably equal keeps longer original",
			existing: "Hello  world",
			delta:    "Hello world",
			want:     "Hello  world",
		},
		{
			name:     "comparably equal full-width variant keeps longer",
			existing: "你好!",
			delta:    "你好！",
			want:     "你好！",
		},
		{
			name:     "comparable superset wins despite whitespace drift",
			existing: "Hello  world",
			delta:    "Hello world, again",
			want:     "Hello world, again",
		},
		{
			name:     "comparable subset loses despite whitespace drift",
			existing: "Hello world, again",
			delta:    "Hello  world",
			want:     "Hello world, again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeDelta(tt.existing, tt.delta))
		})
	}
}

func TestMergeDelta_MultiChunkStream(t *testing.T) {
	// An ordinary streaming session: chunks concatenate in order.
	text := ""
	for _, chunk := range []string{"The ", "quick ", "brown ", "fox"} {
		text = MergeDelta(text, chunk)
	}
	assert.Equal(t, "The quick brown fox", text)
}

func TestMergeDelta_CumulativeStream(t *testing.T) {
	// A cumulative engine resends the growing whole each time.
	text := ""
	for _, snapshot := range []string{"你好", "你好！", "你好！有什么可以帮你的吗？"} {
		text = MergeDelta(text, snapshot)
	}
	assert.Equal(t, "你好！有什么可以帮你的吗？", text)
}

func TestMergeCompletion_Rules(t *testing.T) {
	tests := []struct {
		name      string
		existing  string
		completed string
		want      string
	}{
		{
			name:      "empty completion keeps existing",
			existing:  "Hello",
			completed: "",
			want:      "Hello",
		},
		{
			name:      "empty existing takes completion",
			existing:  "",
			completed: "Hello",
			want:      "Hello",
		},
		{
			name:      "identical completion is a no-op",
			existing:  "Hello world",
			completed: "Hello world",
			want:      "Hello world",
		},
		{
			name:      "doubled echo with space dedupes",
			existing:  "你好，我在。",
			completed: "你好，我在。 你好，我在。",
			want:      "你好，我在。",
		},
		{
			name:      "doubled echo without space dedupes",
			existing:  "你好，我在。",
			completed: "你好，我在。你好，我在。",
			want:      "你好，我在。",
		},
		{
			name:      "completion extending existing wins",
			existing:  "Hello",
			completed: "Hello world",
			want:      "Hello world",
		},
		{
			name:      "existing extending completion keeps existing",
			existing:  "Hello world",
			completed: "Hello",
			want:      "Hello world",
		},
		{
			name:      "comparably equal keeps longer original",
			existing:  "你好！",
			completed: "你好!",
			want:      "你好！",
		},
		{
			name:      "comparably equal length tie prefers completed",
			existing:  "Hello  world",
			completed: "Hello world ",
			want:      "Hello world ",
		},
		{
			name:      "unrelated completion replaces, never concatenates",
			existing:  "partial draft",
			completed: "The final answer.",
			want:      "The final answer.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeCompletion(tt.existing, tt.completed))
		})
	}
}

func TestMergeCompletion_Idempotent(t *testing.T) {
	// Applying the same completion twice must equal applying it once.
	cases := []struct {
		existing  string
		completed string
	}{
		{"Hello ", "Hello world"},
		{"你好，我在。", "你好，我在。 你好，我在。"},
		{"partial", "The final answer."},
		{"", "Hello"},
	}

	for _, tc := range cases {
		once := MergeCompletion(tc.existing, tc.completed)
		twice := MergeCompletion(once, tc.completed)
		assert.Equal(t, once, twice,
			"completion must be idempotent for existing=%q completed=%q", tc.existing, tc.completed)
	}
}

func TestComparableForm(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Hello   world  ", "Hello world"},
		{"你好！", "你好!"},
		{"你好？", "你好?"},
		{"一，二．三。", "一,二.三."},
		{"tabs\tand\nnewlines", "tabs and newlines"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, comparableForm(tt.in), "comparableForm(%q)", tt.in)
	}
}
