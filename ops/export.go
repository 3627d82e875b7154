package ops

import (
	"encoding/json"
	"io"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/models"
	"github.com/FLOX-Foundation/floxlog/segment"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// ExportFormat selects the text encoding of Export.
type ExportFormat int

const (
	ExportCSV ExportFormat = iota
	ExportJSON
	ExportJSONLines
)

// ExportConfig drives Export.
type ExportConfig struct {
	Inputs []string
	// Output is the destination file path.
	Output string
	Format ExportFormat
	// FromNs/ToNs/Symbols filter the exported events.
	FromNs    int64
	ToNs      int64
	Symbols   []uint32
	VerifyCRC bool
}

// exportRow is one flattened event. Book levels are embedded as compact
// JSON arrays so a row stays one line in every output format.
type exportRow struct {
	Type         string `csv:"type" json:"type"`
	ExchangeTsNs int64  `csv:"exchange_ts_ns" json:"exchange_ts_ns"`
	ReceiptTsNs  int64  `csv:"receipt_ts_ns" json:"receipt_ts_ns"`
	SymbolID     uint32 `csv:"symbol_id" json:"symbol_id"`
	Side         string `csv:"side" json:"side,omitempty"`
	PriceRaw     int64  `csv:"price_raw" json:"price_raw,omitempty"`
	QtyRaw       int64  `csv:"qty_raw" json:"qty_raw,omitempty"`
	Bids         string `csv:"bids" json:"bids,omitempty"`
	Asks         string `csv:"asks" json:"asks,omitempty"`
}

func rowOf(ev *models.Event) exportRow {
	switch ev.Type {
	case format.EventTrade:
		side := "buy"
		if ev.Trade.Side == format.SideSell {
			side = "sell"
		}
		return exportRow{
			Type:         "trade",
			ExchangeTsNs: ev.Trade.ExchangeTsNs,
			ReceiptTsNs:  ev.Trade.ReceiptTsNs,
			SymbolID:     ev.Trade.SymbolID,
			Side:         side,
			PriceRaw:     ev.Trade.PriceRaw,
			QtyRaw:       ev.Trade.QtyRaw,
		}
	default:
		kind := "book_snapshot"
		if ev.Type == format.EventBookDelta {
			kind = "book_delta"
		}
		return exportRow{
			Type:         kind,
			ExchangeTsNs: ev.Book.Hdr.ExchangeTsNs,
			ReceiptTsNs:  ev.Book.Hdr.ReceiptTsNs,
			SymbolID:     ev.Book.Hdr.SymbolID,
			Bids:         levelsJSON(ev.Book.Bids),
			Asks:         levelsJSON(ev.Book.Asks),
		}
	}
}

func levelsJSON(levels []format.BookLevel) string {
	if len(levels) == 0 {
		return "[]"
	}
	type level struct {
		Price int64 `json:"p"`
		Qty   int64 `json:"q"`
	}
	out := make([]level, len(levels))
	for i, l := range levels {
		out[i] = level{Price: l.PriceRaw, Qty: l.QtyRaw}
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// Export writes the filtered contents of the inputs as CSV, a JSON
// array or JSON lines. Binary re-export is Merge with a filter.
func Export(cfg ExportConfig) Report {
	var r Report
	r.SegmentsIn = len(cfg.Inputs)
	if len(cfg.Inputs) == 0 {
		r.errorf("export: no input segments")
		return r
	}

	f := segment.NewFilter(cfg.FromNs, cfg.ToNs, cfg.Symbols)
	var rows []exportRow
	for _, path := range cfg.Inputs {
		it, err := segment.OpenIterator(path, segment.IterOptions{VerifyCRC: cfg.VerifyCRC})
		if err != nil {
			r.errorf("%s: %v", path, err)
			continue
		}
		var ev models.Event
		for {
			err := it.Next(&ev)
			if err == io.EOF {
				break
			}
			if err != nil {
				r.errorf("%s: %v", path, err)
				break
			}
			if f.MatchEvent(&ev) {
				rows = append(rows, rowOf(&ev))
			}
		}
		it.Close()
	}

	out, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		r.errorf("export: %v", err)
		return r
	}
	defer out.Close()

	switch cfg.Format {
	case ExportCSV:
		err = gocsv.Marshal(&rows, out)
	case ExportJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(rows)
	case ExportJSONLines:
		enc := json.NewEncoder(out)
		for i := range rows {
			if err = enc.Encode(rows[i]); err != nil {
				break
			}
		}
	}
	if err != nil {
		r.errorf("export: encode: %v", err)
		return r
	}

	r.SegmentsOut = 1
	r.EventsWritten = uint64(len(rows))
	if fi, err := out.Stat(); err == nil {
		r.BytesWritten = uint64(fi.Size())
	}
	log.Info("exported %d events to %s", r.EventsWritten, cfg.Output)
	return r
}
