// Package dashboard derives the activity summary shown after login.
package dashboard

import (
	"context"

	"github.com/KaramelBytes/docqa-cli/internal/documents"
	"github.com/KaramelBytes/docqa-cli/internal/gateway"
	"github.com/KaramelBytes/docqa-cli/internal/qa"
	"golang.org/x/sync/errgroup"
)

// RecentLimit is how many history records the dashboard shows.
const RecentLimit = 5

// Stats is the dashboard content.
type Stats struct {
	TotalDocuments int
	TotalQuestions int
	RecentActivity []qa.Record
}

// Compute derives Stats. history must already be ordered most recent first,
// which the backend guarantees; it is not re-sorted here.
func Compute(docs []documents.Document, history []qa.Record) Stats {
	n := min(len(history), RecentLimit)
	recent := make([]qa.Record, n)
	copy(recent, history[:n])
	return Stats{
		TotalDocuments: len(docs),
		TotalQuestions: len(history),
		RecentActivity: recent,
	}
}

// Lister is satisfied by *documents.Client.
type Lister interface {
	List(ctx context.Context) ([]documents.Document, error)
}

// HistoryFetcher is satisfied by *qa.Controller.
type HistoryFetcher interface {
	History(ctx context.Context, documentID string, limit int) ([]qa.Record, error)
}

// Generations is satisfied by *session.Store.
type Generations interface {
	Generation() uint64
	Current(gen uint64) bool
}

// Aggregator loads both lists once per activation.
type Aggregator struct {
	docs    Lister
	history HistoryFetcher
	gens    Generations
}

func NewAggregator(docs Lister, history HistoryFetcher, gens Generations) *Aggregator {
	return &Aggregator{docs: docs, history: history, gens: gens}
}

// Load fetches the document list and the full history concurrently. The first
// failure cancels the other fetch and is returned.
func (a *Aggregator) Load(ctx context.Context) (Stats, error) {
	gen := a.gens.Generation()
	var (
		docs    []documents.Document
		history []qa.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = a.docs.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = a.history.History(gctx, "", 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	if !a.gens.Current(gen) {
		return Stats{}, gateway.ErrStale
	}
	return Compute(docs, history), nil
}
