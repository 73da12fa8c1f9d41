package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/fieldsync/internal/models"
)

// Ordered fallback rules per dispenser field inside one equipment
// container.
var (
	ruleDispenserNumber = FieldRule{Name: "dispenser_number", Rules: []RuleFunc{
		SelfAttr("data-dispenser"),
		Text(".dispenser-number"),
		LabeledValue("dispenser #"),
		LabeledValue("dispenser"),
		Regex(".dispenser-header, h4", regexp.MustCompile(`(?i)dispenser\s*#?\s*([\d/]+)`)),
	}}

	ruleDispenserMake = FieldRule{Name: "make", Rules: []RuleFunc{
		LabeledValue("make"),
		Text(".dispenser-make"),
		Attr("input[name$='make']", "value"),
	}}

	ruleDispenserModel = FieldRule{Name: "model", Rules: []RuleFunc{
		LabeledValue("model"),
		Text(".dispenser-model"),
		Attr("input[name$='model']", "value"),
	}}

	ruleDispenserSerial = FieldRule{Name: "serial_number", Rules: []RuleFunc{
		LabeledValue("serial number"),
		LabeledValue("serial #"),
		Text(".dispenser-serial"),
		Attr("input[name$='serial']", "value"),
	}}

	ruleDispenserMeterType = FieldRule{Name: "meter_type", Rules: []RuleFunc{
		LabeledValue("meter type"),
		Attr("select[name$='meter_type'] option[selected]", "value"),
		Text(".meter-type"),
	}}

	ruleDispenserNozzles = FieldRule{Name: "nozzle_count", Rules: []RuleFunc{
		LabeledValue("nozzles"),
		LabeledValue("nozzle count"),
		Attr("input[name$='nozzles']", "value"),
	}}

	ruleDispenserGrades = FieldRule{Name: "fuel_grades", Rules: []RuleFunc{
		LabeledValue("grades"),
		LabeledValue("fuel grades"),
		Attr("input[name$='grades']", "value"),
		Text(".fuel-grades"),
	}}
)

// Dispenser extracts one typed dispenser from an equipment container.
// The dispenser number is the upsert key; a container that cannot
// identify its number is an extraction failure. Every other absent field
// stays null so a partially readable dispenser is never silently dropped.
func Dispenser(container *goquery.Selection) (models.Dispenser, error) {
	if container == nil || container.Length() == 0 {
		return models.Dispenser{}, models.NewExtractionError("dispenser", fmt.Errorf("container selection is empty"))
	}

	number := ruleDispenserNumber.Extract(container)
	if number == "" {
		return models.Dispenser{}, models.NewExtractionError("dispenser", fmt.Errorf("no dispenser number matched any rule"))
	}

	d := models.Dispenser{
		// Combined pairs such as "1/2" are kept verbatim.
		Number:       number,
		Make:         ruleDispenserMake.Extract(container),
		Model:        ruleDispenserModel.Extract(container),
		SerialNumber: ruleDispenserSerial.Extract(container),
		MeterType:    ruleDispenserMeterType.Extract(container),
		FuelGrades:   DecodeFuelGrades(ruleDispenserGrades.Extract(container)),
		RawFormData:  dispenserFormData(container),
	}

	if raw := ruleDispenserNozzles.Extract(container); raw != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			d.NozzleCount = n
		} else {
			d.RawFormData["nozzles"] = raw
		}
	}

	return d, nil
}

// dispenserFormData passes through every named form field in the
// container so fields not yet modeled explicitly survive the round trip.
func dispenserFormData(container *goquery.Selection) map[string]string {
	form := make(map[string]string)
	container.Find("input[name], select[name], textarea[name]").Each(func(_ int, field *goquery.Selection) {
		name := field.AttrOr("name", "")
		if name == "" {
			return
		}
		value := field.AttrOr("value", "")
		if value == "" {
			value = strings.TrimSpace(field.Text())
		}
		if value != "" {
			form[name] = value
		}
	})
	return form
}

// Markers distinguishing a legitimately empty equipment section from a
// location the portal can no longer reach.
var unreachableMarkers = []string{
	"location not found",
	"location unavailable",
	"this location has been deleted",
	"no longer have access",
}

// ClassifyEmptyEquipment inspects page state text to decide why zero
// dispensers were found. The distinction is persisted on the work order
// instead of treating both cases as identical silent failures.
func ClassifyEmptyEquipment(doc *goquery.Document) models.CompletionState {
	if doc == nil {
		return models.CompletionLocationUnreachable
	}

	state := strings.ToLower(collapseWhitespace(doc.Find(".page-state, .alert, .empty-state, #content").Text()))
	for _, marker := range unreachableMarkers {
		if strings.Contains(state, marker) {
			return models.CompletionLocationUnreachable
		}
	}
	return models.CompletionEquipmentEmpty
}
