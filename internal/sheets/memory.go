package sheets

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
)

// Memory is an in-process workbook store used for local runs and tests.
// Reads return formatted strings, like the real API.
type Memory struct {
	mu    sync.Mutex
	books map[string]*memBook
}

type memBook struct {
	title string
	tabs  map[string][][]any
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{books: make(map[string]*memBook)}
}

// Create registers a spreadsheet with a single tab seeded with rows.
func (m *Memory) Create(spreadsheetID, title, tab string, rows [][]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[spreadsheetID]
	if !ok {
		b = &memBook{title: title, tabs: make(map[string][][]any)}
		m.books[spreadsheetID] = b
	}
	grid := make([][]any, len(rows))
	for i, r := range rows {
		grid[i] = append([]any(nil), r...)
	}
	b.tabs[tab] = grid
}

// Title returns the spreadsheet title.
func (m *Memory) Title(_ context.Context, spreadsheetID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[spreadsheetID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInaccessible, spreadsheetID)
	}
	return b.title, nil
}

// Get reads a range. Trailing blank cells and rows are trimmed.
func (m *Memory) Get(_ context.Context, spreadsheetID, rng string) ([][]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grid, g, err := m.tab(spreadsheetID, rng)
	if err != nil {
		return nil, err
	}

	var out [][]any
	last := min(g.endRow, len(grid))
	for r := g.startRow; r <= last; r++ {
		src := grid[r-1]
		var row []any
		end := min(g.endCol, len(src)-1)
		for c := g.startCol; c <= end; c++ {
			row = append(row, CellString(src[c]))
		}
		for len(row) > 0 && row[len(row)-1] == "" {
			row = row[:len(row)-1]
		}
		out = append(out, row)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// Update writes values starting at the top-left cell of rng.
func (m *Memory) Update(_ context.Context, spreadsheetID, rng string, values [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(spreadsheetID, rng, values)
}

// Append writes rows below the last non-blank row within the range's columns.
func (m *Memory) Append(_ context.Context, spreadsheetID, rng string, values [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	grid, g, err := m.tab(spreadsheetID, rng)
	if err != nil {
		return err
	}
	lastRow := 0
	for r, row := range grid {
		end := min(g.endCol, len(row)-1)
		for c := g.startCol; c <= end; c++ {
			if CellString(row[c]) != "" {
				lastRow = r + 1
				break
			}
		}
	}
	b := m.books[spreadsheetID]
	b.tabs[g.tab] = put(grid, g.startCol, lastRow+1, values)
	return nil
}

// BatchUpdate applies each range in order.
func (m *Memory) BatchUpdate(_ context.Context, spreadsheetID string, data []ValueRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range data {
		if err := m.write(spreadsheetID, d.Range, d.Values); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) write(spreadsheetID, rng string, values [][]any) error {
	grid, g, err := m.tab(spreadsheetID, rng)
	if err != nil {
		return err
	}
	m.books[spreadsheetID].tabs[g.tab] = put(grid, g.startCol, g.startRow, values)
	return nil
}

func (m *Memory) tab(spreadsheetID, rng string) ([][]any, gridRange, error) {
	b, ok := m.books[spreadsheetID]
	if !ok {
		return nil, gridRange{}, fmt.Errorf("%w: %s", ErrInaccessible, spreadsheetID)
	}
	if !strings.Contains(rng, "!") {
		if grid, ok := b.tabs[unquote(rng)]; ok {
			return grid, gridRange{tab: unquote(rng), endCol: math.MaxInt32, startRow: 1, endRow: math.MaxInt32}, nil
		}
	}
	g, err := parseRange(rng)
	if err != nil {
		return nil, gridRange{}, err
	}
	grid, ok := b.tabs[g.tab]
	if !ok {
		return nil, gridRange{}, fmt.Errorf("unable to parse range: %s", rng)
	}
	return grid, g, nil
}

func put(grid [][]any, col, row int, values [][]any) [][]any {
	for i, vals := range values {
		r := row - 1 + i
		for len(grid) <= r {
			grid = append(grid, nil)
		}
		for j, v := range vals {
			c := col + j
			for len(grid[r]) <= c {
				grid[r] = append(grid[r], nil)
			}
			grid[r][c] = v
		}
	}
	return grid
}

// gridRange is a parsed A1 range. Columns are 0-based, rows 1-based, both inclusive.
type gridRange struct {
	tab      string
	startCol int
	endCol   int
	startRow int
	endRow   int
}

func parseRange(rng string) (gridRange, error) {
	g := gridRange{tab: "Sheet1"}
	ref := rng
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		g.tab = unquote(rng[:i])
		ref = rng[i+1:]
	}

	parts := strings.SplitN(ref, ":", 2)
	c0, r0, err := parseRef(parts[0])
	if err != nil {
		return gridRange{}, fmt.Errorf("unable to parse range: %s", rng)
	}
	c1, r1 := c0, r0
	if len(parts) == 2 {
		if c1, r1, err = parseRef(parts[1]); err != nil {
			return gridRange{}, fmt.Errorf("unable to parse range: %s", rng)
		}
	}

	g.startCol, g.startRow = max(c0, 0), max(r0, 1)
	g.endCol, g.endRow = c1, r1
	if c1 < 0 {
		g.endCol = math.MaxInt32
	}
	if r1 == 0 {
		g.endRow = math.MaxInt32
	}
	return g, nil
}

func unquote(tab string) string {
	if strings.HasPrefix(tab, "'") && strings.HasSuffix(tab, "'") && len(tab) >= 2 {
		return strings.ReplaceAll(tab[1:len(tab)-1], "''", "'")
	}
	return tab
}

// parseRef splits "AB12" into column -1-if-absent and row 0-if-absent.
func parseRef(ref string) (int, int, error) {
	ref = strings.TrimSpace(ref)
	i := 0
	for i < len(ref) && ((ref[i] >= 'A' && ref[i] <= 'Z') || (ref[i] >= 'a' && ref[i] <= 'z')) {
		i++
	}
	col := -1
	if i > 0 {
		col = ColumnIndex(ref[:i])
	}
	row := 0
	for _, r := range ref[i:] {
		if r < '0' || r > '9' {
			return 0, 0, fmt.Errorf("bad reference %q", ref)
		}
		row = row*10 + int(r-'0')
	}
	if col < 0 && row == 0 {
		return 0, 0, fmt.Errorf("empty reference")
	}
	return col, row, nil
}
