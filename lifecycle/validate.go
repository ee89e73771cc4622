package lifecycle

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// INPUTS - request shapes accepted by Engine operations
// =============================================================================

// UpsertRecordInput sets one grid cell.
type UpsertRecordInput struct {
	Date          string       `json:"date" validate:"required,civil_date"`
	DriverID      string       `json:"driverId" validate:"required"`
	CheckID       string       `json:"checkId" validate:"required"`
	Status        RecordStatus `json:"status" validate:"required,record_status"`
	BlockedReason *string      `json:"blockedReason" validate:"omitempty,max=500"`
	Note          *string      `json:"note" validate:"omitempty,max=2000"`
}

// CreateDriverInput adds a driver at the end of its group.
type CreateDriverInput struct {
	Name        string      `json:"name" validate:"required,notblank,max=200"`
	TruckNumber *string     `json:"truckNumber" validate:"omitempty,max=40"`
	Group       DriverGroup `json:"group" validate:"required,driver_group"`
}

// DriverPatch updates any subset of a driver's fields. An empty
// TruckNumber clears it.
type DriverPatch struct {
	Name        *string      `json:"name" validate:"omitempty,notblank,max=200"`
	TruckNumber *string      `json:"truckNumber" validate:"omitempty,max=40"`
	Group       *DriverGroup `json:"group" validate:"omitempty,driver_group"`
	IsActive    *bool        `json:"isActive"`
	SortOrder   *int         `json:"sortOrder" validate:"omitempty,min=1"`
}

func (p DriverPatch) empty() bool {
	return p.Name == nil && p.TruckNumber == nil && p.Group == nil && p.IsActive == nil && p.SortOrder == nil
}

// CreateCheckColumnInput adds a temporary column at the end of its time block.
type CreateCheckColumnInput struct {
	DisplayName     string    `json:"displayName" validate:"required,notblank,max=120"`
	TimeBlock       TimeBlock `json:"timeBlock" validate:"required,time_block"`
	InstructionText string    `json:"instructionText" validate:"max=2000"`
}

// ColumnPatch updates any subset of a column's fields.
type ColumnPatch struct {
	DisplayName     *string     `json:"displayName" validate:"omitempty,notblank,max=120"`
	TimeBlock       *TimeBlock  `json:"timeBlock" validate:"omitempty,time_block"`
	InstructionText *string     `json:"instructionText" validate:"omitempty,max=2000"`
	IsActive        *bool       `json:"isActive"`
	SortOrder       *int        `json:"sortOrder" validate:"omitempty,min=1"`
	ColumnType      *ColumnType `json:"columnType" validate:"omitempty,column_type"`
	ExpiresAt       *time.Time  `json:"expiresAt"`
}

func (p ColumnPatch) empty() bool {
	return p.DisplayName == nil && p.TimeBlock == nil && p.InstructionText == nil &&
		p.IsActive == nil && p.SortOrder == nil && p.ColumnType == nil && p.ExpiresAt == nil
}

// ReorderInput is a drag-and-drop: move Source to just before Target.
type ReorderInput struct {
	ScopeType string `json:"scopeType" validate:"required"`
	ScopeKey  string `json:"scopeKey" validate:"required"`
	SourceID  string `json:"sourceId" validate:"required"`
	TargetID  string `json:"targetId" validate:"required"`
}

// =============================================================================
// VALIDATOR
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their wire name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	must("driver_group", func(fl validator.FieldLevel) bool {
		return DriverGroup(fl.Field().String()).Valid()
	})
	must("time_block", func(fl validator.FieldLevel) bool {
		return TimeBlock(fl.Field().String()).Valid()
	})
	must("record_status", func(fl validator.FieldLevel) bool {
		return RecordStatus(fl.Field().String()).Valid()
	})
	must("column_type", func(fl validator.FieldLevel) bool {
		return ColumnType(fl.Field().String()).Valid()
	})
	must("civil_date", func(fl validator.FieldLevel) bool {
		return Date(fl.Field().String()).Valid()
	})
	must("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

var tagReasons = map[string]string{
	"required":      "is required",
	"notblank":      "must not be blank",
	"max":           "is too long",
	"min":           "must be at least 1",
	"driver_group":  "must be one of New Drivers, Local Drivers, Experienced Drivers",
	"time_block":    "must be one of Morning, Midday, Afternoon",
	"record_status": "must be one of not_started, in_progress, done, blocked",
	"column_type":   "must be standard or temporary",
	"civil_date":    "must be a date in YYYY-MM-DD form",
}

// check runs struct validation and maps failures to ValidationErrors.
func check(v *validator.Validate, in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		reason, ok := tagReasons[fe.Tag()]
		if !ok {
			reason = "failed " + fe.Tag()
		}
		out = append(out, &ValidationError{Field: fieldPath(fe), Reason: reason})
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace so nested
// roster fields read "drivers[2].group".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return invalid("actorId", "is required")
	}
	return nil
}
