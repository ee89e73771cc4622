package lifecycle

import (
	"context"
	"fmt"
	"strings"
)

// ImportDriver is one roster driver.
type ImportDriver struct {
	Name        string      `json:"name" validate:"required,notblank,max=200"`
	TruckNumber *string     `json:"truckNumber" validate:"omitempty,max=40"`
	Group       DriverGroup `json:"group" validate:"required,driver_group"`
}

// ImportColumn is one roster column. Imported columns are standard.
type ImportColumn struct {
	SystemName      string    `json:"systemName" validate:"required,notblank,max=80"`
	DisplayName     string    `json:"displayName" validate:"required,notblank,max=120"`
	TimeBlock       TimeBlock `json:"timeBlock" validate:"required,time_block"`
	InstructionText string    `json:"instructionText" validate:"max=2000"`
}

// ImportSet is a full roster. Order within each scope is the import order.
type ImportSet struct {
	Drivers []ImportDriver `json:"drivers" validate:"dive"`
	Columns []ImportColumn `json:"columns" validate:"dive"`
}

// ImportResult counts what Import created. A table that already held rows
// is skipped as a whole.
type ImportResult struct {
	DriversCreated int  `json:"driversCreated"`
	ColumnsCreated int  `json:"columnsCreated"`
	DriversSkipped bool `json:"driversSkipped"`
	ColumnsSkipped bool `json:"columnsSkipped"`
}

// Import seeds drivers and standard columns from a roster. Each table is
// filled only when empty, so running it twice creates nothing the second
// time. Every created entity gets its own create audit entry, all in one
// unit of work.
func (e *Engine) Import(ctx context.Context, set ImportSet, actorID string) (ImportResult, error) {
	now := e.clock.Now()
	if err := e.checkInput(set, actorID); err != nil {
		return ImportResult{}, err
	}
	seen := make(map[string]bool, len(set.Columns))
	for i, c := range set.Columns {
		if seen[c.SystemName] {
			return ImportResult{}, invalid(fmt.Sprintf("columns[%d].systemName", i), "is duplicated")
		}
		seen[c.SystemName] = true
	}

	var scopes []Scope
	for _, g := range AllDriverGroups {
		scopes = append(scopes, DriverScope(g))
	}
	for _, b := range AllTimeBlocks {
		scopes = append(scopes, ColumnScope(b))
	}

	var out ImportResult
	err := e.run(ctx, "import", func(ctx context.Context) error {
		return e.inTx(ctx, lockSet(scopes...), func(tx Tx, audit auditFunc) error {
			out = ImportResult{}

			existing, err := tx.ListDrivers(ctx, DriverFilter{})
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				out.DriversSkipped = true
			} else {
				next := make(map[DriverGroup]int)
				for _, in := range set.Drivers {
					next[in.Group]++
					d := Driver{
						ID:          e.newID(),
						Name:        strings.TrimSpace(in.Name),
						TruckNumber: optional(in.TruckNumber),
						Group:       in.Group,
						SortOrder:   next[in.Group],
						IsActive:    true,
						CreatedAt:   now,
						UpdatedAt:   now,
					}
					if err := tx.InsertDriver(ctx, d); err != nil {
						return err
					}
					if err := audit(Mutation{
						ActorID:    actorID,
						EntityType: EntityDriver,
						EntityID:   d.ID,
						Class:      Classify(nil, d),
						After:      d,
						At:         now,
					}); err != nil {
						return err
					}
					out.DriversCreated++
				}
			}

			cols, err := tx.ListCheckColumns(ctx, ColumnFilter{})
			if err != nil {
				return err
			}
			if len(cols) > 0 {
				out.ColumnsSkipped = true
				return nil
			}
			next := make(map[TimeBlock]int)
			for _, in := range set.Columns {
				next[in.TimeBlock]++
				c := CheckColumn{
					ID:              e.newID(),
					SystemName:      in.SystemName,
					DisplayName:     strings.TrimSpace(in.DisplayName),
					TimeBlock:       in.TimeBlock,
					SortOrder:       next[in.TimeBlock],
					InstructionText: in.InstructionText,
					ColumnType:      ColumnStandard,
					IsActive:        true,
					CreatedAt:       now,
					UpdatedAt:       now,
				}
				if err := tx.InsertCheckColumn(ctx, c); err != nil {
					return err
				}
				if err := audit(Mutation{
					ActorID:    actorID,
					EntityType: EntityCheck,
					EntityID:   c.ID,
					Class:      Classify(nil, c),
					After:      c,
					At:         now,
				}); err != nil {
					return err
				}
				out.ColumnsCreated++
			}
			return nil
		})
	})
	return out, err
}
