package sheets

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"scrabble-bot/internal/store"
)

var _ store.RecordStore = (*Client)(nil)

func (c *Client) readAll(ctx context.Context, sheet string) ([][]interface{}, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, sheet+"!A:Z").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *Client) appendRow(ctx context.Context, sheet string, row []interface{}) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{row}}
	_, err := c.srv.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A:Z", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (c *Client) updateCell(ctx context.Context, sheet, a1 string, value interface{}) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{{value}}}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!"+a1, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// sheetID resolves the numeric id of a sheet tab, needed for row deletion.
func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[title]
	c.mu.Unlock()
	if ok {
		return id, nil
	}
	ss, err := c.srv.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			c.mu.Lock()
			c.sheetIDs[title] = sh.Properties.SheetId
			c.mu.Unlock()
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", title)
}

func (c *Client) Query(ctx context.Context, table, orderBy string, dir store.Direction) ([]store.Record, error) {
	values, err := c.readAll(ctx, table)
	if err != nil {
		return nil, err
	}
	recs := recordsFromValues(values)
	if orderBy != "" {
		store.SortRecords(recs, orderBy, dir)
	}
	return recs, nil
}

func (c *Client) Insert(ctx context.Context, table string, rec store.Record) error {
	values, err := c.readAll(ctx, table)
	if err != nil {
		return err
	}
	header := headerOf(values)
	if len(header) == 0 {
		return fmt.Errorf("sheet %q has no header row", table)
	}
	row := rec.Clone()
	row[store.ColID] = uuid.NewString()
	row[store.ColRegisteredAt] = c.clock.Now().UTC().Format(store.TimeLayout)

	if err := c.appendRow(ctx, table, rowFromRecord(header, row)); err != nil {
		return err
	}
	c.kick(table)
	return nil
}

func (c *Client) Update(ctx context.Context, table, id string, patch store.Record) error {
	values, err := c.readAll(ctx, table)
	if err != nil {
		return err
	}
	header := headerOf(values)
	rowNum := findRow(values, header, id)
	if rowNum == 0 {
		return store.ErrNotFound
	}
	for col, v := range patch {
		if col == store.ColID || col == store.ColRegisteredAt {
			continue
		}
		idx := indexOf(header, col)
		if idx < 0 {
			return fmt.Errorf("sheet %q has no column %q", table, col)
		}
		a1 := fmt.Sprintf("%s%d", columnLetter(idx), rowNum)
		if err := c.updateCell(ctx, table, a1, v); err != nil {
			return err
		}
	}
	c.kick(table)
	return nil
}

func (c *Client) Delete(ctx context.Context, table, id string) error {
	values, err := c.readAll(ctx, table)
	if err != nil {
		return err
	}
	rowNum := findRow(values, headerOf(values), id)
	if rowNum == 0 {
		return store.ErrNotFound
	}
	sid, err := c.sheetID(ctx, table)
	if err != nil {
		return err
	}
	req := &sheetsv4.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsv4.Request{{
			DeleteDimension: &sheetsv4.DeleteDimensionRequest{
				Range: &sheetsv4.DimensionRange{
					SheetId:    sid,
					Dimension:  "ROWS",
					StartIndex: int64(rowNum - 1),
					EndIndex:   int64(rowNum),
					// The first tab has id 0, which omitempty would drop.
					ForceSendFields: []string{"SheetId"},
				},
			},
		}},
	}
	if _, err := c.srv.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return err
	}
	c.kick(table)
	return nil
}

// SubscribeToChanges shares one poller per sheet between subscribers; the
// poller stops when the last subscriber leaves. Joining and leaving happen
// under c.mu so a subscriber never joins a poller that is being retired.
func (c *Client) SubscribeToChanges(table string, handler func(store.Change)) (store.Subscription, error) {
	c.mu.Lock()
	w, ok := c.watchers[table]
	if !ok {
		w = newWatcher(func(ctx context.Context) ([][]interface{}, error) {
			return c.fetch(ctx, table)
		}, c.pollInterval, c.logger.With("sheet", table))
		c.watchers[table] = w
		w.start()
	}
	remove := w.add(func() { handler(store.Change{Table: table}) })
	c.mu.Unlock()

	return store.SubscriptionFunc(func() {
		c.mu.Lock()
		last := remove()
		if last && c.watchers[table] == w {
			delete(c.watchers, table)
		}
		c.mu.Unlock()
		if last {
			w.stop()
		}
	}), nil
}

// kick notifies subscribers of a local write without waiting for the next poll.
func (c *Client) kick(table string) {
	c.mu.Lock()
	w := c.watchers[table]
	c.mu.Unlock()
	if w != nil {
		w.fire()
	}
}

// ---------- helpers ----------

func get(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return fmt.Sprint(row[idx])
}

func headerOf(values [][]interface{}) []string {
	if len(values) == 0 {
		return nil
	}
	header := make([]string, len(values[0]))
	for i := range values[0] {
		header[i] = strings.ToLower(strings.TrimSpace(get(values[0], i)))
	}
	return header
}

func indexOf(header []string, col string) int {
	for i, h := range header {
		if h == col {
			return i
		}
	}
	return -1
}

// recordsFromValues maps data rows (header at index 0) to records, skipping blank rows.
func recordsFromValues(values [][]interface{}) []store.Record {
	header := headerOf(values)
	recs := []store.Record{}
	for i := 1; i < len(values); i++ {
		row := values[i]
		rec := store.Record{}
		empty := true
		for j, col := range header {
			if col == "" {
				continue
			}
			v := get(row, j)
			if v != "" {
				empty = false
			}
			rec[col] = v
		}
		if empty {
			continue
		}
		recs = append(recs, rec)
	}
	return recs
}

func rowFromRecord(header []string, rec store.Record) []interface{} {
	row := make([]interface{}, len(header))
	for i, col := range header {
		v, ok := rec[col]
		if !ok || v == nil {
			row[i] = ""
			continue
		}
		row[i] = v
	}
	return row
}

// findRow returns the 1-based sheet row holding id, or 0.
func findRow(values [][]interface{}, header []string, id string) int {
	idx := indexOf(header, store.ColID)
	if idx < 0 {
		return 0
	}
	for i := 1; i < len(values); i++ {
		if get(values[i], idx) == id {
			return i + 1 // sheet rows are 1-indexed; i is 0-indexed in values
		}
	}
	return 0
}

// columnLetter converts a 0-based column index to A1 notation (0 -> A, 26 -> AA).
func columnLetter(idx int) string {
	s := ""
	for idx >= 0 {
		s = string(rune('A'+idx%26)) + s
		idx = idx/26 - 1
	}
	return s
}
