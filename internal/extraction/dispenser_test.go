package extraction

import (
	"testing"
)

const dispenserCard = `<div class="dispenser-card" data-dispenser="1/2">
  <div class="dispenser-header">Dispenser #1/2</div>
  <dl>
    <dt>Make</dt><dd>Gilbarco</dd>
    <dt>Model</dt><dd>Encore 700S</dd>
    <dt>Serial Number</dt><dd>GB-99120-A</dd>
    <dt>Meter Type</dt><dd>Coriolis</dd>
    <dt>Nozzles</dt><dd>4</dd>
    <dt>Grades</dt><dd>1,2,3</dd>
  </dl>
  <input name="dispenser[1][filter_date]" value="2024-11-02">
</div>`

const sparseDispenserCard = `<div class="dispenser-card">
  <h4>Dispenser 7</h4>
  <dl><dt>Serial Number</dt><dd>WN-11</dd></dl>
</div>`

func TestDispenserFullCard(t *testing.T) {
	doc := docFromHTML(t, dispenserCard)
	container := doc.Find(".dispenser-card").First()

	d, err := Dispenser(container)
	if err != nil {
		t.Fatalf("Dispenser failed: %v", err)
	}

	if d.Number != "1/2" {
		t.Errorf("Number = %q, want 1/2", d.Number)
	}
	if d.Make != "Gilbarco" || d.Model != "Encore 700S" {
		t.Errorf("Make/Model = %q/%q", d.Make, d.Model)
	}
	if d.SerialNumber != "GB-99120-A" {
		t.Errorf("SerialNumber = %q", d.SerialNumber)
	}
	if d.MeterType != "Coriolis" {
		t.Errorf("MeterType = %q", d.MeterType)
	}
	if d.NozzleCount != 4 {
		t.Errorf("NozzleCount = %d, want 4", d.NozzleCount)
	}
	wantGrades := []string{"Regular", "Plus", "Premium"}
	if len(d.FuelGrades) != len(wantGrades) {
		t.Fatalf("FuelGrades = %v, want %v", d.FuelGrades, wantGrades)
	}
	for i, g := range wantGrades {
		if d.FuelGrades[i] != g {
			t.Errorf("FuelGrades[%d] = %q, want %q", i, d.FuelGrades[i], g)
		}
	}
	if d.RawFormData["dispenser[1][filter_date]"] != "2024-11-02" {
		t.Errorf("RawFormData passthrough missing: %v", d.RawFormData)
	}
}

func TestDispenserSparseCard(t *testing.T) {
	doc := docFromHTML(t, sparseDispenserCard)
	container := doc.Find(".dispenser-card").First()

	d, err := Dispenser(container)
	if err != nil {
		t.Fatalf("Dispenser failed on sparse card: %v", err)
	}

	// Header regex fallback identifies the unit.
	if d.Number != "7" {
		t.Errorf("Number = %q, want 7", d.Number)
	}
	if d.SerialNumber != "WN-11" {
		t.Errorf("SerialNumber = %q, want WN-11", d.SerialNumber)
	}
	// Missing fields are null, not an error and not a dropped row.
	if d.Make != "" || d.NozzleCount != 0 || d.FuelGrades != nil {
		t.Errorf("expected null fields, got %+v", d)
	}
}

func TestDispenserNoIdentity(t *testing.T) {
	doc := docFromHTML(t, `<div class="dispenser-card"><p>unlabeled</p></div>`)
	container := doc.Find(".dispenser-card").First()

	if _, err := Dispenser(container); err == nil {
		t.Fatal("expected error for container with no dispenser number")
	}
}

func TestClassifyEmptyEquipment(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"empty section",
			`<div class="empty-state">No equipment configured for this location.</div>`,
			"equipment_empty",
		},
		{
			"deleted location",
			`<div class="alert">This location has been deleted.</div>`,
			"location_unreachable",
		},
		{
			"revoked access",
			`<div class="page-state">You no longer have access to this site.</div>`,
			"location_unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFromHTML(t, tt.html)
			got := ClassifyEmptyEquipment(doc)
			if string(got) != tt.want {
				t.Errorf("ClassifyEmptyEquipment = %q, want %q", got, tt.want)
			}
		})
	}
}
