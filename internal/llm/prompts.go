package llm

import (
	"fmt"
	"strings"
)

// The three prompts below drive the model-authored parts of the memory
// subsystem. Each instructs the model to answer in the newline-delimited
// command-plan format consumed by ParsePlan, with "##" introducing optional
// trailing commentary.

const searchPlanTemplate = `You are the memory retrieval planner for a conversational agent.
Given the user's latest message and the recent conversation, emit a plan of
retrieval calls, one per line, choosing from:

v_search(query='...')                       semantic search over stored memories, returns up to %d snippets
g_search_entity(entity_name='...')          look up one entity's description in the knowledge graph
get_neighbors(entity_name='...', neighbor_type='...')   entities adjacent to one entity (neighbor_type may be empty)
get_shared_neighbors(entity_name1='...', entity_name2='...', neighbor_type='...')   entities adjacent to both
find_connections(entity_name1='...', entity_name2='...')   paths linking two entities, up to %d

Emit at most 5 lines. Use single quotes around values. Do not explain the
plan; if you must comment, put it after a line starting with ##.

Recent conversation:
%s

User message: %s`

// SearchPlanPrompt builds the prompt that asks the model for a search plan.
func SearchPlanPrompt(userInput string, history []string, maxVectorHits, maxGraphHits int) string {
	return fmt.Sprintf(searchPlanTemplate, maxVectorHits, maxGraphHits, indent(history), userInput)
}

const writePlanTemplate = `You are the memory extraction step of a conversational agent. Review the
interaction below and decide what is worth remembering long-term about the
user or the conversation. Emit zero or more commands, one per line:

v_add(document='...')                       store a new memory
v_update(uuid='...', new_document='...')    amend a memory listed below, addressed by its short id
set_username(name='...')                    the user stated what they want to be called

Do not store what is already covered by a recent write or a related memory;
amend instead. Skip small talk. If nothing is worth storing, output only a
line starting with ##.

Interaction:
%s

Recent writes:
%s

Related memories already retrieved this turn:
%s`

// WritePlanPrompt builds the prompt that asks the model for a write plan.
// recentUpdates renders the ring buffer of recent writes; relatedDocs lists
// the documents retrieved earlier in the turn, each with its short id.
func WritePlanPrompt(history, recentUpdates, relatedDocs []string) string {
	return fmt.Sprintf(writePlanTemplate, indent(history), indent(recentUpdates), indent(relatedDocs))
}

const summaryTemplate = `Condense the conversation below into a running summary for a conversational
agent. Merge the existing summary with the new messages, keeping facts about
the user, ongoing topics and commitments. Let details older than about %d days
fade unless still relevant. Answer with the new summary only.

Existing summary:
%s

New messages:
%s`

// SummaryPrompt builds the context-compaction prompt. forgetDays is a hint
// for how quickly stale detail should decay out of the summary.
func SummaryPrompt(currentSummary string, items []string, forgetDays int) string {
	return fmt.Sprintf(summaryTemplate, forgetDays, currentSummary, indent(items))
}

const replyTemplate = `You are %s, a cheerful virtual singer chatting with %s.
Current time: %s

What you remember:
%s

Conversation so far:
%s

%s: %s
%s:`

// ReplyPrompt builds the main conversational prompt for the agent reply.
func ReplyPrompt(agentName, userName, now, context string, knowledge []string, userInput string) string {
	return fmt.Sprintf(replyTemplate, agentName, userName, now, indent(knowledge), context, userName, userInput, agentName)
}

func indent(lines []string) string {
	if len(lines) == 0 {
		return "(none)"
	}
	return "- " + strings.Join(lines, "\n- ")
}
