package lifecycle

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SortDrivers orders drivers by group display order, then sortOrder, then id.
func SortDrivers(ds []Driver) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Group.Rank() != b.Group.Rank() {
			return a.Group.Rank() < b.Group.Rank()
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.ID < b.ID
	})
}

// SortColumns orders columns by time block display order, then sortOrder, then id.
func SortColumns(cs []CheckColumn) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.TimeBlock.Rank() != b.TimeBlock.Rank() {
			return a.TimeBlock.Rank() < b.TimeBlock.Rank()
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.ID < b.ID
	})
}

// =============================================================================
// EXCEPTIONS
// =============================================================================

// BlockedItem is one blocked cell, labelled for display.
type BlockedItem struct {
	RecordID    string    `json:"recordId"`
	DriverID    string    `json:"driverId"`
	DriverName  string    `json:"driverName"`
	TruckNumber *string   `json:"truckNumber"`
	CheckID     string    `json:"checkId"`
	CheckName   string    `json:"checkName"`
	TimeBlock   TimeBlock `json:"timeBlock"`
	Reason      string    `json:"reason"`
	Note        *string   `json:"note"`
	UpdatedAt   time.Time `json:"updatedAt"`
	UpdatedBy   string    `json:"updatedBy"`
}

// BlockSummary is progress within one time block. NotDone counts every
// cell that isn't done, blocked included.
type BlockSummary struct {
	TimeBlock      TimeBlock       `json:"timeBlock"`
	Total          int             `json:"total"`
	Done           int             `json:"done"`
	Blocked        int             `json:"blocked"`
	NotDone        int             `json:"notDone"`
	CompletionRate decimal.Decimal `json:"completionRate"`
}

// Exceptions is the follow-up view for one date.
type Exceptions struct {
	Date    Date           `json:"date"`
	Blocked []BlockedItem  `json:"blocked"`
	Blocks  []BlockSummary `json:"blocks"`
}

var hundred = decimal.NewFromInt(100)

// completionRate returns done/total as a percentage rounded to 1 dp.
// An empty block reports 0.
func completionRate(done, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(done)).
		Mul(hundred).
		DivRound(decimal.NewFromInt(int64(total)), 1)
}

// ListExceptions summarizes the grid for date over active drivers and
// eligible columns. A cell with no record counts as not_started.
func (e *Engine) ListExceptions(ctx context.Context, date string) (Exceptions, error) {
	now := e.clock.Now()
	d, err := ParseDate(date)
	if err != nil {
		return Exceptions{}, invalid("date", "must be a date in YYYY-MM-DD form")
	}

	var out Exceptions
	err = e.run(ctx, "list_exceptions", func(ctx context.Context) error {
		drivers, cols, err := e.grid(ctx, now)
		if err != nil {
			return err
		}
		records, err := e.store.ListRecords(ctx, d)
		if err != nil {
			return err
		}
		out = buildExceptions(d, drivers, cols, records)
		return nil
	})
	return out, err
}

func buildExceptions(date Date, drivers []Driver, cols []CheckColumn, records []DailyCheckRecord) Exceptions {
	byKey := make(map[RecordKey]DailyCheckRecord, len(records))
	for _, r := range records {
		byKey[r.Key()] = r
	}

	blocks := make(map[TimeBlock]*BlockSummary, len(AllTimeBlocks))
	out := Exceptions{Date: date, Blocked: []BlockedItem{}}
	for _, b := range AllTimeBlocks {
		out.Blocks = append(out.Blocks, BlockSummary{TimeBlock: b})
	}
	for i := range out.Blocks {
		blocks[out.Blocks[i].TimeBlock] = &out.Blocks[i]
	}

	// drivers and cols are already in display order, so blocked items are too.
	for _, drv := range drivers {
		for _, col := range cols {
			sum := blocks[col.TimeBlock]
			sum.Total++

			r, ok := byKey[RecordKey{Date: date, DriverID: drv.ID, CheckID: col.ID}]
			status := StatusNotStarted
			if ok {
				status = r.Status
			}
			switch status {
			case StatusDone:
				sum.Done++
				continue
			case StatusBlocked:
				sum.Blocked++
				reason := DefaultBlockedReason
				if r.BlockedReason != nil && *r.BlockedReason != "" {
					reason = *r.BlockedReason
				}
				out.Blocked = append(out.Blocked, BlockedItem{
					RecordID:    r.ID,
					DriverID:    drv.ID,
					DriverName:  drv.Name,
					TruckNumber: drv.TruckNumber,
					CheckID:     col.ID,
					CheckName:   col.DisplayName,
					TimeBlock:   col.TimeBlock,
					Reason:      reason,
					Note:        r.Note,
					UpdatedAt:   r.UpdatedAt,
					UpdatedBy:   r.UpdatedByUserID,
				})
			}
			sum.NotDone++
		}
	}

	for i := range out.Blocks {
		out.Blocks[i].CompletionRate = completionRate(out.Blocks[i].Done, out.Blocks[i].Total)
	}
	return out
}
