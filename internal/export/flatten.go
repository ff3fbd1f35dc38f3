package export

import (
	"strings"
	"survey-export/internal/models"
	"time"
)

// rowValues maps one record onto the fixed column schema. Every field
// goes through a null-safe default: missing strings become "", missing
// numerics become an empty cell (never zero), and an absent tenant
// block leaves all seven tenant columns empty.
func rowValues(record *models.SurveyRecord) []interface{} {
	tenant := record.TenantDetails
	if tenant == nil {
		tenant = &models.TenantDetails{}
	}

	return []interface{}{
		record.SurveyorName,
		record.Phone,
		isoDate(record.Date),
		record.WardNo,
		record.PropertyAddress,
		record.ZipCode,
		numberCell(record.Latitude),
		numberCell(record.Longitude),
		record.OccupiersName,
		record.Gender,
		record.FatherName,
		record.MotherName,
		record.ContactNumber,
		record.OwnerOrTenant,
		numberCell(tenant.MonthlyRent),
		tenant.OwnerName,
		tenant.OwnerFatherName,
		tenant.OwnerMotherName,
		tenant.OwnerContactNumber,
		tenant.StreetAddress,
		tenant.ZipCode,
		numberCell(record.AreaOfPlot),
		record.NatureOfBuilding,
		strings.Join(record.NumberOfFloors, ", "),
		record.Floor,
		numberCell(record.FloorArea),
		record.UsageType,
		record.MainGatePhoto,
		record.BuildingPhoto,
		isoTimestamp(record.CreatedAt),
	}
}

func numberCell(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func isoDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func isoTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
