package conversations

import (
	"strings"

	"github.com/chative/sqlagent/internal/agent/model"
)

// Transcript renders conversation turns as LLM context.
type Transcript struct {
	maxTurns int
}

func NewTranscript(maxTurns int) *Transcript {
	return &Transcript{maxTurns: maxTurns}
}

// Build renders the recent history followed by the latest user turn as the
// message to analyze.
func (tr *Transcript) Build(turns []model.Turn) string {
	return tr.build(turns, false)
}

// BuildUserOnly is Build without assistant turns, so that clarification
// questions asked by the assistant cannot leak into rewritten queries.
func (tr *Transcript) BuildUserOnly(turns []model.Turn) string {
	return tr.build(turns, true)
}

func (tr *Transcript) build(turns []model.Turn, userOnly bool) string {
	last := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == model.RoleUser {
			last = i
			break
		}
	}

	var history []model.Turn
	if last >= 0 {
		history = turns[:last]
	} else {
		history = turns
	}
	recent := trimTail(history, tr.maxTurns)

	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, t := range recent {
		if t.Text == "" {
			continue
		}
		switch t.Role {
		case model.RoleUser:
			b.WriteString("UserMessage(" + t.Text + ")\n")
		case model.RoleAssistant:
			if !userOnly {
				b.WriteString("AssistantMessage(" + t.Text + ")\n")
			}
		}
	}
	b.WriteString("</conversation_context>")

	if last >= 0 {
		b.WriteString("\n<current_message_to_analyze>\n")
		b.WriteString("UserMessage(" + turns[last].Text + ")\n")
		b.WriteString("</current_message_to_analyze>")
	}
	return b.String()
}

// ====================== Helper function ======================
func trimTail(turns []model.Turn, maxTurns int) []model.Turn {
	if maxTurns <= 0 || len(turns) <= maxTurns {
		return turns
	}
	return turns[len(turns)-maxTurns:]
}
