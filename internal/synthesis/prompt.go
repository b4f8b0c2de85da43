package synthesis

import (
	"fmt"
	"strings"
)

const excerptSeparator = "\n\n---\n\n"

const systemPrompt = "You are helping define an organization's learning DNA. " +
	"You write value statements using only the source excerpts you are given."

type PromptInput struct {
	Topic       string
	Subtopic    string
	Description string
	Excerpts    []string
	MinValues   int
	MaxValues   int
	MaxWords    int
}

// BuildPrompt returns the system and user messages for one synthesis call.
func BuildPrompt(in PromptInput) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", in.Topic)
	fmt.Fprintf(&b, "Subtopic: %s\n", in.Subtopic)
	if d := strings.TrimSpace(in.Description); d != "" {
		fmt.Fprintf(&b, "Description: %s\n", d)
	}
	b.WriteString("\n")
	b.WriteString("Extract value statements strictly from the source excerpts below. ")
	b.WriteString("Do not use outside knowledge and do not infer anything the excerpts do not state. ")
	b.WriteString("If the excerpts contain nothing relevant to this subtopic, output nothing.\n\n")
	fmt.Fprintf(&b,
		"Write %d to %d value statements that capture the core principles and important context the excerpts give for this subtopic. "+
			"Each statement must stand on its own and keep enough detail to be reused in other prompts. "+
			"Put each statement on its own line starting with a dash (-). Do not number them. "+
			"Keep each statement under %d words.\n\n",
		in.MinValues, in.MaxValues, in.MaxWords,
	)
	b.WriteString("Source excerpts:\n")
	b.WriteString(strings.Join(in.Excerpts, excerptSeparator))
	return systemPrompt, b.String()
}

// ParseValues keeps the dash-prefixed lines of a completion, in order, with
// the dash and surrounding whitespace removed.
func ParseValues(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		line = strings.TrimSpace(line[1:])
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
