package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Value input options understood by the Sheets API.
const (
	InputRaw         = "RAW"
	InputUserEntered = "USER_ENTERED"
)

// Google talks to the Sheets v4 API with a service account.
type Google struct {
	svc   *sheetsapi.Service
	input string
}

// NewGoogle builds a client from a service-account JSON key file.
func NewGoogle(ctx context.Context, credentialsFile string) (*Google, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	cfg, err := google.JWTConfigFromJSON(b, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials file: %w", err)
	}

	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets client: %w", err)
	}
	return &Google{svc: svc, input: InputRaw}, nil
}

// WithInput returns a copy of the client writing with the given value input option.
func (g *Google) WithInput(option string) *Google {
	return &Google{svc: g.svc, input: option}
}

// Title returns the spreadsheet title.
func (g *Google) Title(ctx context.Context, spreadsheetID string) (string, error) {
	ss, err := g.svc.Spreadsheets.Get(spreadsheetID).Fields("properties.title").Context(ctx).Do()
	if err != nil {
		return "", wrap(err)
	}
	return ss.Properties.Title, nil
}

// Get reads a range of formatted values.
func (g *Google) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, wrap(err)
	}
	return resp.Values, nil
}

// Update overwrites a range starting at its top-left cell.
func (g *Google) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	vr := &sheetsapi.ValueRange{Values: values}
	_, err := g.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).ValueInputOption(g.input).Context(ctx).Do()
	return wrap(err)
}

// Append adds rows after the last row of the table found in rng.
func (g *Google) Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	vr := &sheetsapi.ValueRange{Values: values}
	_, err := g.svc.Spreadsheets.Values.Append(spreadsheetID, rng, vr).
		ValueInputOption(g.input).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return wrap(err)
}

// BatchUpdate writes several ranges in one request.
func (g *Google) BatchUpdate(ctx context.Context, spreadsheetID string, data []ValueRange) error {
	if len(data) == 0 {
		return nil
	}
	req := &sheetsapi.BatchUpdateValuesRequest{ValueInputOption: g.input}
	for _, d := range data {
		req.Data = append(req.Data, &sheetsapi.ValueRange{Range: d.Range, Values: d.Values})
	}
	_, err := g.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return wrap(err)
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %s", ErrInaccessible, apiErr.Message)
	}
	return err
}
