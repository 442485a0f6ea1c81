// ABOUTME: Renders reconciled conversation states for human consumption
// ABOUTME: goldmark HTML for markdown-bearing items, plain text for terminals

package transcript

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/chorus/internal/schema"
)

// RenderHTML renders the conversation as an HTML fragment. Message, reasoning,
// and review text is treated as markdown; tool output and patches are
// preformatted verbatim.
func RenderHTML(state schema.State) (string, error) {
	var b strings.Builder
	b.WriteString(`<div class="transcript">` + "\n")

	for _, it := range state.Items {
		if err := writeItemHTML(&b, it); err != nil {
			return "", fmt.Errorf("rendering item %s: %w", it.ID, err)
		}
	}
	if state.Plan != nil {
		writePlanHTML(&b, state.Plan)
	}
	for _, req := range state.UserInputQueue {
		writeUserInputHTML(&b, req)
	}

	b.WriteString("</div>\n")
	return b.String(), nil
}

func writeItemHTML(b *strings.Builder, it schema.Item) error {
	switch it.Kind {
	case schema.ItemKindMessage:
		if it.Message == nil {
			return nil
		}
		fmt.Fprintf(b, `<section class="item message message-%s">`+"\n", it.Message.Role)
		if err := writeMarkdown(b, it.Message.Text); err != nil {
			return err
		}
		for _, img := range it.Message.Images {
			fmt.Fprintf(b, `<img src=%q alt="attachment">`+"\n", img)
		}
		b.WriteString("</section>\n")

	case schema.ItemKindReasoning:
		if it.Reasoning == nil {
			return nil
		}
		b.WriteString(`<section class="item reasoning">` + "\n")
		if it.Reasoning.Summary != "" {
			b.WriteString(`<div class="reasoning-summary">` + "\n")
			if err := writeMarkdown(b, it.Reasoning.Summary); err != nil {
				return err
			}
			b.WriteString("</div>\n")
		}
		if it.Reasoning.Content != "" {
			b.WriteString(`<div class="reasoning-content">` + "\n")
			if err := writeMarkdown(b, it.Reasoning.Content); err != nil {
				return err
			}
			b.WriteString("</div>\n")
		}
		b.WriteString("</section>\n")

	case schema.ItemKindTool:
		if it.Tool == nil {
			return nil
		}
		b.WriteString(`<section class="item tool">` + "\n")
		heading := toolHeading(it.Tool)
		if suffix := statusSuffix(it.Tool); suffix != "" {
			heading += " " + suffix
		}
		fmt.Fprintf(b, "<header>%s</header>\n", html.EscapeString(heading))
		if it.Tool.Detail != "" {
			fmt.Fprintf(b, `<p class="tool-detail">%s</p>`+"\n", html.EscapeString(it.Tool.Detail))
		}
		if len(it.Tool.FileChanges) > 0 {
			b.WriteString("<ul>\n")
			for _, fc := range it.Tool.FileChanges {
				fmt.Fprintf(b, "<li>%s (+%d -%d)</li>\n", html.EscapeString(fc.Path), fc.Added, fc.Removed)
			}
			b.WriteString("</ul>\n")
		}
		if it.Tool.Output != "" {
			fmt.Fprintf(b, "<pre>%s</pre>\n", html.EscapeString(it.Tool.Output))
		}
		b.WriteString("</section>\n")

	case schema.ItemKindDiff:
		if it.Diff == nil {
			return nil
		}
		fmt.Fprintf(b, `<section class="item diff"><pre>%s</pre></section>`+"\n",
			html.EscapeString(it.Diff.Patch))

	case schema.ItemKindReview:
		if it.Review == nil {
			return nil
		}
		fmt.Fprintf(b, `<section class="item review review-%s">`+"\n", it.Review.State)
		if err := writeMarkdown(b, it.Review.Text); err != nil {
			return err
		}
		b.WriteString("</section>\n")

	case schema.ItemKindExplore:
		if it.Explore == nil {
			return nil
		}
		fmt.Fprintf(b, `<section class="item explore explore-%s"><ul>`+"\n", it.Explore.Status)
		for _, e := range it.Explore.Entries {
			fmt.Fprintf(b, "<li>%s %s</li>\n", e.Kind, html.EscapeString(e.Label))
		}
		b.WriteString("</ul></section>\n")
	}
	return nil
}

func writeMarkdown(b *strings.Builder, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return goldmark.Convert([]byte(text), b)
}

func writePlanHTML(b *strings.Builder, plan *schema.TurnPlan) {
	b.WriteString(`<section class="plan">` + "\n")
	if plan.Explanation != nil && *plan.Explanation != "" {
		fmt.Fprintf(b, "<p>%s</p>\n", html.EscapeString(*plan.Explanation))
	}
	b.WriteString("<ol>\n")
	for _, step := range plan.Steps {
		fmt.Fprintf(b, `<li class="step-%s">%s</li>`+"\n", step.Status, html.EscapeString(step.Text))
	}
	b.WriteString("</ol>\n</section>\n")
}

func writeUserInputHTML(b *strings.Builder, req schema.UserInputRequest) {
	b.WriteString(`<section class="user-input-request">` + "\n")
	for _, q := range req.Params.Questions {
		if q.Header != "" {
			fmt.Fprintf(b, "<h4>%s</h4>\n", html.EscapeString(q.Header))
		}
		fmt.Fprintf(b, "<p>%s</p>\n", html.EscapeString(q.Prompt))
		if len(q.Options) > 0 {
			b.WriteString("<ul>\n")
			for _, o := range q.Options {
				fmt.Fprintf(b, "<li>%s</li>\n", html.EscapeString(o.Label))
			}
			b.WriteString("</ul>\n")
		}
	}
	b.WriteString("</section>\n")
}

// RenderText renders the conversation as plain text for terminal output.
func RenderText(state schema.State) string {
	var b strings.Builder

	for _, it := range state.Items {
		writeItemText(&b, it)
	}
	if state.Plan != nil {
		writePlanText(&b, state.Plan)
	}
	for _, req := range state.UserInputQueue {
		writeUserInputText(&b, req)
	}
	return b.String()
}

func writeItemText(b *strings.Builder, it schema.Item) {
	switch it.Kind {
	case schema.ItemKindMessage:
		if it.Message == nil {
			return
		}
		fmt.Fprintf(b, "%s> %s\n", it.Message.Role, it.Message.Text)
		for _, img := range it.Message.Images {
			fmt.Fprintf(b, "  [image] %s\n", img)
		}

	case schema.ItemKindReasoning:
		if it.Reasoning == nil {
			return
		}
		if it.Reasoning.Summary != "" {
			writeBlock(b, "[reasoning]", it.Reasoning.Summary)
		}
		if it.Reasoning.Content != "" {
			writeBlock(b, "[reasoning detail]", it.Reasoning.Content)
		}

	case schema.ItemKindTool:
		if it.Tool == nil {
			return
		}
		heading := toolHeading(it.Tool)
		if suffix := statusSuffix(it.Tool); suffix != "" {
			heading += " " + suffix
		}
		fmt.Fprintf(b, "[tool %s] %s\n", it.Tool.ToolType, heading)
		if it.Tool.Detail != "" {
			fmt.Fprintf(b, "  %s\n", it.Tool.Detail)
		}
		for _, fc := range it.Tool.FileChanges {
			fmt.Fprintf(b, "  %s (+%d -%d)\n", fc.Path, fc.Added, fc.Removed)
		}
		if it.Tool.Output != "" {
			writeIndented(b, it.Tool.Output)
		}

	case schema.ItemKindDiff:
		if it.Diff == nil {
			return
		}
		b.WriteString("[diff]\n")
		writeIndented(b, it.Diff.Patch)

	case schema.ItemKindReview:
		if it.Review == nil {
			return
		}
		writeBlock(b, fmt.Sprintf("[review %s]", it.Review.State), it.Review.Text)

	case schema.ItemKindExplore:
		if it.Explore == nil {
			return
		}
		fmt.Fprintf(b, "[explore %s]\n", it.Explore.Status)
		for _, e := range it.Explore.Entries {
			fmt.Fprintf(b, "  %s %s\n", e.Kind, e.Label)
		}
	}
}

func writePlanText(b *strings.Builder, plan *schema.TurnPlan) {
	if plan.TurnID != "" {
		fmt.Fprintf(b, "plan (%s):\n", plan.TurnID)
	} else {
		b.WriteString("plan:\n")
	}
	if plan.Explanation != nil && *plan.Explanation != "" {
		fmt.Fprintf(b, "  %s\n", *plan.Explanation)
	}
	for _, step := range plan.Steps {
		fmt.Fprintf(b, "  %s %s\n", stepMarker(step.Status), step.Text)
	}
}

func writeUserInputText(b *strings.Builder, req schema.UserInputRequest) {
	b.WriteString("pending input:\n")
	for _, q := range req.Params.Questions {
		if q.Header != "" {
			fmt.Fprintf(b, "  %s: %s\n", q.Header, q.Prompt)
		} else {
			fmt.Fprintf(b, "  %s\n", q.Prompt)
		}
	}
}

func stepMarker(status schema.StepStatus) string {
	switch status {
	case schema.StepCompleted:
		return "[x]"
	case schema.StepInProgress:
		return "[>]"
	}
	return "[ ]"
}

func toolHeading(tool *schema.ToolItem) string {
	if tool.Title != "" {
		return tool.Title
	}
	return tool.ToolType
}

// statusSuffix formats the status and duration parenthetical, or nothing when
// the engine never reported a status.
func statusSuffix(tool *schema.ToolItem) string {
	if tool.Status == "" {
		return ""
	}
	if tool.DurationMs > 0 {
		d := time.Duration(tool.DurationMs) * time.Millisecond
		return fmt.Sprintf("(%s, %s)", tool.Status, d)
	}
	return fmt.Sprintf("(%s)", tool.Status)
}

func writeBlock(b *strings.Builder, label, text string) {
	b.WriteString(label + "\n")
	writeIndented(b, text)
}

func writeIndented(b *strings.Builder, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString("  | " + line + "\n")
	}
}
