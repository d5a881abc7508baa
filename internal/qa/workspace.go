package qa

import (
	"context"
	"sync"

	"github.com/KaramelBytes/docqa-cli/internal/documents"
	"github.com/KaramelBytes/docqa-cli/internal/gateway"
)

// Generations is satisfied by *session.Store.
type Generations interface {
	Generation() uint64
	Current(gen uint64) bool
}

// Selection owns which document is selected. It is satisfied by
// *documents.Library, whose selection is dropped once the document leaves
// the authoritative list.
type Selection interface {
	Select(id string) (documents.Document, error)
	Selected() (documents.Document, bool)
	ClearSelection()
}

// View is a copy of what the Q&A screen displays.
type View struct {
	Document *documents.Document
	Question string
	Summary  string
	Answer   *Answer
	History  []Record
}

// ticket identifies the conditions a request was started under.
type ticket struct {
	gen   uint64
	epoch uint64
	seq   uint64
	docID string
}

// Workspace is the Q&A screen state for the selected document. The selection
// itself is read from Selection on every operation. Every displayed field
// remembers the sequence number of the request that produced it so a late
// response cannot overwrite a newer one.
type Workspace struct {
	ctrl *Controller
	sel  Selection
	gens Generations

	mu         sync.Mutex
	docID      string // selection the displayed fields belong to
	epoch      uint64 // bumped whenever docID changes and on Reset
	issued     uint64
	question   string
	summary    string
	summarySeq uint64
	answer     *Answer
	answerSeq  uint64
	history    []Record
	historySeq uint64
}

func NewWorkspace(ctrl *Controller, sel Selection, gens Generations) *Workspace {
	return &Workspace{ctrl: ctrl, sel: sel, gens: gens}
}

// Select makes id the selected document. The summary, answer and history of
// the previous document are cleared before the new history is fetched.
func (w *Workspace) Select(ctx context.Context, id string) ([]Record, error) {
	if _, err := w.sel.Select(id); err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.sync()
	w.mu.Unlock()
	return w.RefreshHistory(ctx)
}

// Selected returns the current document.
func (w *Workspace) Selected() (documents.Document, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sync()
}

// SetQuestion updates the question input.
func (w *Workspace) SetQuestion(q string) {
	w.mu.Lock()
	w.question = q
	w.mu.Unlock()
}

// Ask sends the current question about the selected document. The question
// input is cleared only when the ask succeeds; history is then refetched.
func (w *Workspace) Ask(ctx context.Context) (*Answer, error) {
	w.mu.Lock()
	asked := w.question
	t := w.issue()
	w.mu.Unlock()

	ans, err := w.ctrl.Ask(ctx, asked, t.docID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if !w.valid(t) {
		w.mu.Unlock()
		return nil, gateway.ErrStale
	}
	if t.seq > w.answerSeq {
		w.answer, w.answerSeq = ans, t.seq
	}
	if w.question == asked {
		w.question = ""
	}
	w.mu.Unlock()

	if _, err := w.RefreshHistory(ctx); err != nil {
		return ans, err
	}
	return ans, nil
}

// Summarize replaces the displayed summary with a fresh one.
func (w *Workspace) Summarize(ctx context.Context) (string, error) {
	w.mu.Lock()
	t := w.issue()
	w.mu.Unlock()

	s, err := w.ctrl.Summarize(ctx, t.docID)
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.valid(t) {
		return "", gateway.ErrStale
	}
	if t.seq > w.summarySeq {
		w.summary, w.summarySeq = s.Text, t.seq
	}
	return s.Text, nil
}

// RefreshHistory refetches the history of the selected document.
func (w *Workspace) RefreshHistory(ctx context.Context) ([]Record, error) {
	w.mu.Lock()
	t := w.issue()
	w.mu.Unlock()
	if t.docID == "" {
		return nil, gateway.Invalid("document_id", "Please select a document first")
	}

	recs, err := w.ctrl.History(ctx, t.docID, 0)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.valid(t) {
		return nil, gateway.ErrStale
	}
	if t.seq > w.historySeq {
		w.history, w.historySeq = recs, t.seq
	}
	return copyRecords(w.history), nil
}

// DeleteHistory removes qaID and drops it from the displayed history.
func (w *Workspace) DeleteHistory(ctx context.Context, qaID string) error {
	if err := w.ctrl.DeleteHistory(ctx, qaID); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.history[:0:0]
	for _, r := range w.history {
		if r.ID != qaID {
			kept = append(kept, r)
		}
	}
	w.history = kept
	return nil
}

// Reset forgets everything, including the selection. In-flight results are
// dropped when they arrive.
func (w *Workspace) Reset() {
	w.sel.ClearSelection()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.docID = ""
	w.epoch++
	w.question, w.summary, w.answer, w.history = "", "", nil, nil
}

// View returns a copy of the displayed state.
func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	doc, ok := w.sync()
	v := View{Question: w.question, Summary: w.summary, History: copyRecords(w.history)}
	if ok {
		v.Document = &doc
	}
	if w.answer != nil {
		a := *w.answer
		v.Answer = &a
	}
	return v
}

// sync follows the owner's selection. When it changed or vanished, the fields
// shown for the old document are cleared. Must be called with w.mu held.
func (w *Workspace) sync() (documents.Document, bool) {
	doc, ok := w.sel.Selected()
	if doc.ID != w.docID {
		w.docID = doc.ID
		w.epoch++
		w.summary, w.answer, w.history = "", nil, nil
	}
	return doc, ok
}

// issue must be called with w.mu held.
func (w *Workspace) issue() ticket {
	w.sync()
	w.issued++
	return ticket{gen: w.gens.Generation(), epoch: w.epoch, seq: w.issued, docID: w.docID}
}

// valid must be called with w.mu held.
func (w *Workspace) valid(t ticket) bool {
	w.sync()
	return w.epoch == t.epoch && w.gens.Current(t.gen)
}

func copyRecords(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	copy(out, in)
	return out
}
