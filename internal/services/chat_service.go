// Package services – ChatService
//
// This file implements ChatService, which answers follow-up questions about a
// completed research report. Each question is grounded in the stored report:
// the report is flattened into facts, the facts most relevant to the question
// are picked through a search.Index, and the model receives the report, the
// picked facts and the recent conversation. Without a model the service
// answers from the picked facts alone. An optional knowledge index (a
// product FAQ loaded at startup) contributes passages alongside the report.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the research identifier.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/identity"
	"github.com/tbourn/shiporskip-backend/internal/repo"
	"github.com/tbourn/shiporskip-backend/internal/research"
	"github.com/tbourn/shiporskip-backend/internal/search"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"

	// relevantFacts is how many report facts are quoted for a question.
	relevantFacts = 4
	// knowledgeFacts is how many knowledge passages are added to them.
	knowledgeFacts = 2
	// knowledgeMaxDocs bounds the paragraphs kept from a knowledge file.
	knowledgeMaxDocs = 500

	noAnswerReply = "I can't answer that from this report."
)

const chatSystemPrompt = `You are a startup advisor discussing a competitive research report with
its author. Answer only from the report below and say so when it does not
cover the question. Be concise and concrete.

<research_report>
%s
</research_report>

<relevant_facts>
%s
</relevant_facts>`

// ChatReply is the assistant turn plus the caller's remaining allowance.
type ChatReply struct {
	Message   *domain.ChatMessage `json:"message"`
	Remaining int                 `json:"remaining"`
}

// ChatService coordinates chat-on-report conversations.
type ChatService struct {
	DB  *gorm.DB
	LLM research.LLM

	// MaxMessageRunes caps a single user message.
	MaxMessageRunes int
	// HistoryWindow is how many previous turns are replayed to the model.
	HistoryWindow int
	// FreeLimit caps user messages per research; zero disables chat.
	FreeLimit int
	// Knowledge, when set, is searched alongside the report facts.
	Knowledge search.Index
}

// knowledgeStopwords extends the default stop words with terms every FAQ
// passage shares, so they never match on their own.
var knowledgeStopwords = append([]string{"shiporskip", "report", "research"}, search.DefaultStopwords...)

// LoadKnowledge builds the chat knowledge index from a markdown file whose
// paragraphs are separated by blank lines.
func LoadKnowledge(path string) (search.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge file: %w", err)
	}
	defer f.Close()
	idx, err := search.NewIndexFromReader(f,
		search.WithStopwords(knowledgeStopwords),
		search.WithMaxDocs(knowledgeMaxDocs),
	)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	return idx, nil
}

// Send validates content, checks the research is the caller's and completed,
// enforces the per-research allowance, asks for a reply, and persists the
// user and assistant turns atomically.
func (s *ChatService) Send(ctx context.Context, id identity.Identity, researchID, content string) (*ChatReply, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "Send",
		trace.WithAttributes(attribute.String("research.id", researchID)),
	)
	defer span.End()

	if !id.Authenticated() {
		return nil, ErrAuthRequired
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(content) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}

	r, err := repo.GetResearch(ctx, s.DB, researchID, id.UserID)
	if err != nil {
		return nil, notFound(err)
	}
	if r.Status != domain.StatusCompleted || r.Result == nil {
		return nil, ErrReportNotReady
	}

	used, err := repo.CountUserChatMessages(ctx, s.DB, researchID)
	if err != nil {
		return nil, err
	}
	if int(used) >= s.FreeLimit {
		return nil, ErrChatLimitReached
	}

	history, err := repo.ListRecentChatMessages(ctx, s.DB, researchID, s.HistoryWindow)
	if err != nil {
		return nil, err
	}

	facts := relevant(reportFacts(r.Result), content)
	if s.Knowledge != nil {
		for _, h := range s.Knowledge.TopK(content, knowledgeFacts) {
			facts = append(facts, h.Snippet)
		}
	}
	reply, source, err := s.answer(ctx, r.Result, facts, history, content)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	chatReplies.WithLabelValues(source).Inc()

	var assistant *domain.ChatMessage
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.LockResearchForChat(ctx, tx, researchID); err != nil {
			return err
		}
		// Recount under the lock; the check above only spares a model call.
		n, err := repo.CountUserChatMessages(ctx, tx, researchID)
		if err != nil {
			return err
		}
		if int(n) >= s.FreeLimit {
			return ErrChatLimitReached
		}
		used = n
		if _, err := repo.CreateChatMessage(ctx, tx, researchID, id.UserID, roleUser, content); err != nil {
			return err
		}
		m, err := repo.CreateChatMessage(ctx, tx, researchID, id.UserID, roleAssistant, reply)
		if err != nil {
			return err
		}
		assistant = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ChatReply{Message: assistant, Remaining: max(s.FreeLimit-int(used)-1, 0)}, nil
}

// History returns the whole conversation about one of the caller's records.
func (s *ChatService) History(ctx context.Context, id identity.Identity, researchID string) ([]domain.ChatMessage, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "History",
		trace.WithAttributes(attribute.String("research.id", researchID)),
	)
	defer span.End()

	if !id.Authenticated() {
		return nil, ErrAuthRequired
	}
	if _, err := repo.GetResearch(ctx, s.DB, researchID, id.UserID); err != nil {
		return nil, notFound(err)
	}
	msgs, err := repo.ListChatMessages(ctx, s.DB, researchID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, nil
}

// answer asks the model, or answers from facts when no model is configured.
func (s *ChatService) answer(ctx context.Context, rep *domain.AnalysisReport, facts []string, history []domain.ChatMessage, question string) (string, string, error) {
	if s.LLM == nil {
		return retrievalReply(facts), "retrieval", nil
	}

	body, err := json.Marshal(rep)
	if err != nil {
		return "", "", err
	}
	msgs := make([]research.Message, 0, len(history)+2)
	msgs = append(msgs, research.Message{
		Role:    roleSystem,
		Content: fmt.Sprintf(chatSystemPrompt, body, strings.Join(facts, "\n")),
	})
	for _, m := range history {
		msgs = append(msgs, research.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, research.Message{Role: roleUser, Content: question})

	out, err := s.LLM.Complete(ctx, msgs, false)
	if errors.Is(err, research.ErrLLMDisabled) {
		return retrievalReply(facts), "retrieval", nil
	}
	if err != nil {
		return "", "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return retrievalReply(facts), "retrieval", nil
	}
	return out, "llm", nil
}

// reportFacts flattens a report into one sentence per fact.
func reportFacts(rep *domain.AnalysisReport) []string {
	facts := []string{"Verdict: " + rep.Verdict}
	if rep.MarketSaturation != "" {
		facts = append(facts, "Market saturation is "+string(rep.MarketSaturation)+".")
	}
	for _, c := range rep.Competitors {
		f := c.Name + ": " + c.Description
		if c.Differentiator != "" {
			f += " Differentiator: " + c.Differentiator
		}
		if c.ThreatLevel != "" {
			f += " Threat level: " + string(c.ThreatLevel) + "."
		}
		facts = append(facts, f)
	}
	for _, g := range rep.Gaps {
		facts = append(facts, "Market gap: "+g)
	}
	for _, p := range rep.Pros {
		facts = append(facts, "Strength: "+p)
	}
	for _, c := range rep.Cons {
		facts = append(facts, "Risk: "+c)
	}
	for i, step := range rep.BuildPlan {
		facts = append(facts, fmt.Sprintf("Build step %d: %s", i+1, step))
	}
	return facts
}

// relevant picks the facts most similar to question, in ranked order.
func relevant(facts []string, question string) []string {
	idx := search.NewIndexFromStrings(facts, search.WithMinParagraphRunes(0))
	hits := idx.TopK(question, relevantFacts)
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Snippet)
	}
	return out
}

func retrievalReply(facts []string) string {
	if len(facts) == 0 {
		return noAnswerReply
	}
	return "From the report:\n- " + strings.Join(facts, "\n- ")
}
