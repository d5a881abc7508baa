// Package qa implements the question/answer protocol against one document:
// ask, summarize, history and history deletion.
package qa

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/KaramelBytes/docqa-cli/internal/gateway"
)

// Record is one stored question/answer exchange.
type Record struct {
	ID          string       `json:"qa_id"`
	DocumentID  string       `json:"document_id"`
	Question    string       `json:"question"`
	Answer      string       `json:"answer"`
	Timestamp   gateway.Time `json:"timestamp"`
	Success     bool         `json:"success"`
	ContextUsed string       `json:"context_used,omitempty"`
}

// Answer is the /qa/ask response.
type Answer struct {
	ID        string       `json:"qa_id"`
	Question  string       `json:"question"`
	Text      string       `json:"answer"`
	Success   bool         `json:"success"`
	Timestamp gateway.Time `json:"timestamp"`
}

// Summary is the /qa/summarize response.
type Summary struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Text       string `json:"summary"`
}

// Doer is the part of the gateway qa needs.
type Doer interface {
	Do(ctx context.Context, call gateway.Call, out any) error
}

// Controller issues Q&A requests. It keeps no state.
type Controller struct {
	gw Doer
}

func NewController(gw Doer) *Controller { return &Controller{gw: gw} }

// Ask sends question about documentID. Both are checked before any request.
func (c *Controller) Ask(ctx context.Context, question, documentID string) (*Answer, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, gateway.Invalid("question", "Please enter a question")
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, gateway.Invalid("document_id", "Please select a document first")
	}
	body := map[string]string{"question": q, "document_id": documentID}
	var out Answer
	if err := c.gw.Do(ctx, gateway.Call{Method: http.MethodPost, Path: "/qa/ask", Body: body, Fallback: "Failed to get answer"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Summarize asks for a summary of the whole document.
func (c *Controller) Summarize(ctx context.Context, documentID string) (*Summary, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, gateway.Invalid("document_id", "Please select a document first")
	}
	var out Summary
	call := gateway.Call{Method: http.MethodPost, Path: "/qa/summarize/" + url.PathEscape(documentID), Fallback: "Failed to generate summary"}
	if err := c.gw.Do(ctx, call, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists records most recent first. An empty documentID returns the
// user's whole history; limit <= 0 leaves the backend default.
func (c *Controller) History(ctx context.Context, documentID string, limit int) ([]Record, error) {
	q := url.Values{}
	if documentID != "" {
		q.Set("document_id", documentID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		History []Record `json:"history"`
	}
	if err := c.gw.Do(ctx, gateway.Call{Method: http.MethodGet, Path: "/qa/history", Query: q, Fallback: "Failed to get history"}, &out); err != nil {
		return nil, err
	}
	if out.History == nil {
		out.History = []Record{}
	}
	return out.History, nil
}

// DeleteHistory removes one record.
func (c *Controller) DeleteHistory(ctx context.Context, qaID string) error {
	if strings.TrimSpace(qaID) == "" {
		return gateway.Invalid("qa_id", "Record id is required")
	}
	call := gateway.Call{Method: http.MethodDelete, Path: "/qa/history/" + url.PathEscape(qaID), Fallback: "Failed to delete record"}
	return c.gw.Do(ctx, call, nil)
}
