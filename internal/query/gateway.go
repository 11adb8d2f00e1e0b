// Package query scopes question-answering requests to the documents that
// finished indexing.
package query

import (
	"context"
	"strings"

	"kbsync/internal/model"
	"kbsync/internal/registry"
)

// Asker is the question-answering slice of the backend API.
type Asker interface {
	Ask(ctx context.Context, query string, documentIDs []string) (model.AskResult, error)
}

// Gateway builds the document scope from the registry's current Success
// set. An empty registry does not block querying; the empty scope is passed
// through and the server decides what no context means.
type Gateway struct {
	API      Asker
	Registry *registry.Registry
}

func (g *Gateway) Ask(ctx context.Context, question string) (model.AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return model.AskResult{}, &model.ServiceError{Kind: model.KindValidation, Message: "question is empty"}
	}
	return g.API.Ask(ctx, question, g.Registry.SuccessIDs())
}
