package models

import (
	"fmt"
	"time"
)

// CompletionState records the outcome of the equipment detail pass for a
// work order. An empty dispenser section and an unreachable location are
// different facts and are persisted as such.
type CompletionState string

const (
	CompletionPending             CompletionState = "pending"
	CompletionEquipmentScraped    CompletionState = "equipment_scraped"
	CompletionEquipmentEmpty      CompletionState = "equipment_empty"
	CompletionLocationUnreachable CompletionState = "location_unreachable"
)

// Address holds the decomposed site address. Raw retains the unsplit
// string so nothing is lost when decomposition fails.
type Address struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
	Raw    string `json:"raw,omitempty"`
}

// VisitRef points at the portal's visit page for a work order.
type VisitRef struct {
	ID     string `json:"id,omitempty"`
	URL    string `json:"url,omitempty"`
	Number string `json:"number,omitempty"`
}

// Dispenser is a fuel-pump island unit nested under a work order's
// equipment detail. Number may represent a combined pair such as "1/2".
// RawFormData passes through labeled fields not yet modeled explicitly.
type Dispenser struct {
	Number       string            `json:"number"`
	Make         string            `json:"make,omitempty"`
	Model        string            `json:"model,omitempty"`
	SerialNumber string            `json:"serial_number,omitempty"`
	MeterType    string            `json:"meter_type,omitempty"`
	NozzleCount  int               `json:"nozzle_count,omitempty"`
	FuelGrades   []string          `json:"fuel_grades,omitempty"`
	RawFormData  map[string]string `json:"raw_form_data,omitempty"`
}

// WorkOrder is a unit of scheduled field work extracted from the portal.
// ExternalID plus UserID is the natural key for idempotent upsert.
type WorkOrder struct {
	UserID        string            `json:"user_id" badgerhold:"index"`
	ExternalID    string            `json:"external_id"`
	ServiceName   string            `json:"service_name,omitempty"`
	SiteName      string            `json:"site_name,omitempty"`
	Address       Address           `json:"address"`
	ServiceCode   string            `json:"service_code,omitempty"`
	ScheduledDate *time.Time        `json:"scheduled_date,omitempty"`
	Visit         VisitRef          `json:"visit"`
	DetailURL     string            `json:"detail_url,omitempty"`
	RawFields     map[string]string `json:"raw_fields,omitempty"`
	Dispensers    []Dispenser       `json:"dispensers,omitempty"`
	Completion    CompletionState   `json:"completion"`
	FirstSeenAt   time.Time         `json:"first_seen_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Key returns the storage key for the natural key (user, external id).
func (w *WorkOrder) Key() string {
	return WorkOrderKey(w.UserID, w.ExternalID)
}

// WorkOrderKey builds the storage key for a (user, external id) pair.
func WorkOrderKey(userID, externalID string) string {
	return fmt.Sprintf("%s:%s", userID, externalID)
}

// MergeDispenser upserts d into the work order's dispenser list by
// dispenser number. Missing fields stay null rather than dropping rows.
func (w *WorkOrder) MergeDispenser(d Dispenser) {
	for i := range w.Dispensers {
		if w.Dispensers[i].Number == d.Number {
			w.Dispensers[i] = d
			return
		}
	}
	w.Dispensers = append(w.Dispensers, d)
}
