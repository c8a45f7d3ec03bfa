package service

import (
	"context"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"pdfchat/internal/domain"
)

const (
	answerPrompt = "Use the following pieces of context to answer the question at the end. " +
		"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n" +
		"{context}\n\nQuestion: {question}\nHelpful Answer:"

	condensePrompt = "Given the following conversation and a follow up question, rephrase the follow up " +
		"question to be a standalone question, in its original language.\n\n" +
		"Chat History:\n{history}\nFollow Up Input: {question}\nStandalone question:"
)

// Generator turns retrieved chunks into an answer with a chat model.
type Generator struct {
	completer domain.Completer
	condense  bool
}

// NewGenerator returns a generator. With condense set, follow-up questions
// are rephrased into standalone ones before retrieval.
func NewGenerator(completer domain.Completer, condense bool) *Generator {
	return &Generator{completer: completer, condense: condense}
}

// Generate stuffs every chunk into one grounding prompt and completes it
// after the prior turns. Provider failures are *domain.GenerationError.
func (g *Generator) Generate(ctx context.Context, query string, chunks []domain.Chunk, history []domain.Turn) (string, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	prompt := strings.NewReplacer(
		"{context}", strings.Join(texts, "\n\n"),
		"{question}", query,
	).Replace(answerPrompt)

	ctxzap.Debug(ctx, "generating answer",
		zap.Int("chunks", len(chunks)),
		zap.Int("history", len(history)),
		zap.String("completer", g.completer.Name()),
	)
	answer, err := g.completer.Complete(ctx, prompt, history)
	if err != nil {
		return "", &domain.GenerationError{Err: err}
	}
	return strings.TrimSpace(answer), nil
}

// Standalone returns query rephrased against history. It returns query as is
// when condensation is off, history is empty, or the model replies blank.
func (g *Generator) Standalone(ctx context.Context, query string, history []domain.Turn) (string, error) {
	if !g.condense || len(history) == 0 {
		return query, nil
	}
	prompt := strings.NewReplacer(
		"{history}", formatHistory(history),
		"{question}", query,
	).Replace(condensePrompt)

	rephrased, err := g.completer.Complete(ctx, prompt, nil)
	if err != nil {
		return "", &domain.GenerationError{Err: err}
	}
	rephrased = strings.TrimSpace(rephrased)
	if rephrased == "" {
		return query, nil
	}
	ctxzap.Debug(ctx, "condensed question", zap.String("standalone", rephrased))
	return rephrased, nil
}

func formatHistory(history []domain.Turn) string {
	var b strings.Builder
	for _, turn := range history {
		b.WriteString("\nHuman: ")
		b.WriteString(turn.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(turn.Answer)
	}
	return b.String()
}
