package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"
)

// Compile-time interface check.
var _ FillJournal = (*ParquetJournal)(nil)

// ParquetJournal implements FillJournal as append-only Parquet part files,
// one directory per UTC day.
type ParquetJournal struct {
	DataDir string

	mu  sync.Mutex
	seq int
}

// NewParquetJournal creates a ParquetJournal rooted at the given data directory.
func NewParquetJournal(dataDir string) *ParquetJournal {
	return &ParquetJournal{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// FillRecord is the Parquet schema for an executed order or slice. Decimal
// values are stored as strings to keep them exact.
type FillRecord struct {
	OrderID   string `parquet:"order_id"`
	Slice     int32  `parquet:"slice"`
	BrokerID  string `parquet:"broker_id"`
	Owner     string `parquet:"owner"`
	Symbol    string `parquet:"symbol"`
	Side      string `parquet:"side"`
	Quantity  string `parquet:"quantity"`
	Price     string `parquet:"price"`
	Timestamp int64  `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
}

// ---------------------------------------------------------------------------
// FillJournal implementation
// ---------------------------------------------------------------------------

// WriteFills appends fills to the days they belong to. Each call writes one
// new part file per day and never rewrites earlier parts:
//
//	<DataDir>/fills/<YYYY-MM-DD>/part-<unix-nanos>-<seq>.parquet
func (j *ParquetJournal) WriteFills(_ context.Context, fills []domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	groups := make(map[time.Time][]FillRecord)
	for _, f := range fills {
		ts := f.Timestamp.UTC()
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		groups[day] = append(groups[day], FillRecord{
			OrderID:   f.OrderID,
			Slice:     int32(f.Slice),
			BrokerID:  f.BrokerID,
			Owner:     f.Owner,
			Symbol:    f.Symbol,
			Side:      string(f.Side),
			Quantity:  f.Quantity.String(),
			Price:     f.Price.String(),
			Timestamp: f.Timestamp.UnixMilli(),
		})
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for day, records := range groups {
		j.seq++
		path := filepath.Join(j.dayDir(day), fmt.Sprintf("part-%d-%06d.parquet", time.Now().UnixNano(), j.seq))
		if err := writeParquetFile(path, mergeFillRecords(nil, records)); err != nil {
			return fmt.Errorf("writing fills for %s: %w", day.Format("2006-01-02"), err)
		}
	}
	return nil
}

// ReadFills returns the fills recorded on day, oldest first. A slice written
// more than once is reported once, from its latest part. An unreadable part
// is an error; it is never skipped.
func (j *ParquetJournal) ReadFills(_ context.Context, day time.Time) ([]domain.Fill, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	parts, err := filepath.Glob(filepath.Join(j.dayDir(day), "part-*.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(parts)

	var records []FillRecord
	for _, path := range parts {
		rows, err := readParquetFile[FillRecord](path)
		if err != nil {
			return nil, fmt.Errorf("reading fill part %s: %w", filepath.Base(path), err)
		}
		records = mergeFillRecords(records, rows)
	}

	fills := make([]domain.Fill, 0, len(records))
	for _, r := range records {
		qty, err := decimal.NewFromString(r.Quantity)
		if err != nil {
			return nil, fmt.Errorf("fill %s/%d quantity: %w", r.OrderID, r.Slice, err)
		}
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("fill %s/%d price: %w", r.OrderID, r.Slice, err)
		}
		fills = append(fills, domain.Fill{
			OrderID:   r.OrderID,
			Slice:     int(r.Slice),
			BrokerID:  r.BrokerID,
			Owner:     r.Owner,
			Symbol:    r.Symbol,
			Side:      domain.Side(r.Side),
			Quantity:  qty,
			Price:     price,
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		})
	}
	return fills, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// dayDir returns the directory holding a day's fill parts.
func (j *ParquetJournal) dayDir(t time.Time) string {
	return filepath.Join(j.DataDir, "fills", t.UTC().Format("2006-01-02"))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

// writeParquetFile writes records to a temporary file and renames it into
// place, so a reader never sees a half-written part.
func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeFillRecords deduplicates fill records by (order_id, slice), preferring
// incoming records over existing ones. Results are sorted by timestamp.
func mergeFillRecords(existing, incoming []FillRecord) []FillRecord {
	type key struct {
		orderID string
		slice   int32
	}
	seen := make(map[key]FillRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.OrderID, r.Slice}] = r
	}
	for _, r := range incoming {
		seen[key{r.OrderID, r.Slice}] = r
	}

	merged := make([]FillRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Timestamp == merged[j].Timestamp {
			if merged[i].OrderID == merged[j].OrderID {
				return merged[i].Slice < merged[j].Slice
			}
			return merged[i].OrderID < merged[j].OrderID
		}
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
