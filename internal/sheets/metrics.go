package sheets

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sheets_api_calls_total",
	Help: "Spreadsheet API calls by operation and result.",
}, []string{"op", "result"})

// Instrumented counts every call made through the wrapped client.
type Instrumented struct {
	next Client
}

// Instrument wraps c with call counters.
func Instrument(c Client) *Instrumented {
	return &Instrumented{next: c}
}

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	apiCalls.WithLabelValues(op, result).Inc()
}

func (i *Instrumented) Title(ctx context.Context, spreadsheetID string) (string, error) {
	t, err := i.next.Title(ctx, spreadsheetID)
	observe("title", err)
	return t, err
}

func (i *Instrumented) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	v, err := i.next.Get(ctx, spreadsheetID, rng)
	observe("get", err)
	return v, err
}

func (i *Instrumented) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	err := i.next.Update(ctx, spreadsheetID, rng, values)
	observe("update", err)
	return err
}

func (i *Instrumented) Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	err := i.next.Append(ctx, spreadsheetID, rng, values)
	observe("append", err)
	return err
}

func (i *Instrumented) BatchUpdate(ctx context.Context, spreadsheetID string, data []ValueRange) error {
	err := i.next.BatchUpdate(ctx, spreadsheetID, data)
	observe("batch_update", err)
	return err
}
