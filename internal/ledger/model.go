package ledger

import (
	"encoding/json"
	"strings"
)

type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
)

// WorkLogRow is one load, delivery or job segment of a time card.
type WorkLogRow struct {
	LoadTime       string `json:"load_time"`
	DelTime        string `json:"del_time"`
	TruckEquip     string `json:"truck_equip"`
	NumLoads       string `json:"num_loads"`
	UnitMeas       string `json:"unit_meas"`
	MaterialType   string `json:"material_type"`
	SourceSupplier string `json:"source_supplier"`
	JobDesc        string `json:"job_desc"`
	JobNum         string `json:"job_num"`
	JobHours       string `json:"job_hours"`
}

// Fields holds every business field a caller may write. Submission id,
// timestamp and status are owned by the ledger.
type Fields struct {
	EmployeeName     string       `json:"employee_name"`
	Date             string       `json:"date"`
	DayOfWeek        string       `json:"day_of_week"`
	TimeIn           string       `json:"time_in"`
	TimeOut          string       `json:"time_out"`
	EquipmentNum     string       `json:"equipment_num"`
	BegMiles         string       `json:"beg_miles"`
	EndMiles         string       `json:"end_miles"`
	BegRegionalMiles string       `json:"beg_regional_miles"`
	EndRegionalMiles string       `json:"end_regional_miles"`
	TotalMiles       string       `json:"total_miles"`
	FuelGallons      string       `json:"fuel_gallons"`
	TruckDefects     []string     `json:"truck_defects"`
	TrailerDefects   []string     `json:"trailer_defects"`
	DefectRemarks    string       `json:"defect_remarks"`
	Injured          string       `json:"injured"`
	InjuryDetails    string       `json:"injury_details"`
	Signature        string       `json:"signature"`
	WorkLogRows      []WorkLogRow `json:"work_log_rows"`
	ManagerNotes     string       `json:"manager_notes"`
	InvoiceNum       string       `json:"invoice_num"`
}

// TimeCard is one ledger row as returned to clients.
type TimeCard struct {
	RowNumber    int    `json:"row_number"`
	SubmissionID string `json:"submission_id"`
	Timestamp    string `json:"timestamp"`
	Fields
	Status Status `json:"status"`
}

// Column keys. Headers are matched case-insensitively so sheets written by
// earlier versions keep loading.
const (
	keySubmissionID     = "submission_id"
	keyTimestamp        = "timestamp"
	keyEmployeeName     = "employee_name"
	keyDate             = "date"
	keyDayOfWeek        = "day_of_week"
	keyTimeIn           = "time_in"
	keyTimeOut          = "time_out"
	keyEquipmentNum     = "equipment_num"
	keyBegMiles         = "beg_miles"
	keyEndMiles         = "end_miles"
	keyBegRegionalMiles = "beg_regional_miles"
	keyEndRegionalMiles = "end_regional_miles"
	keyTotalMiles       = "total_miles"
	keyFuelGallons      = "fuel_gallons"
	keyTruckDefects     = "truck_defects"
	keyTrailerDefects   = "trailer_defects"
	keyDefectRemarks    = "defect_remarks"
	keyInjured          = "injured"
	keyInjuryDetails    = "injury_details"
	keySignature        = "signature"
	keyWorkLog          = "work_log_rows"
	keyStatus           = "status"
	keyManagerNotes     = "manager_notes"
	keyInvoiceNum       = "invoice_num"
)

type column struct {
	key     string
	header  string
	aliases []string
}

// Columns in the order a new Master sheet is laid out.
var columns = []column{
	{key: keySubmissionID, header: "Submission ID"},
	{key: keyTimestamp, header: "Timestamp"},
	{key: keyEmployeeName, header: "Employee Name"},
	{key: keyDate, header: "Date"},
	{key: keyDayOfWeek, header: "Day of Week"},
	{key: keyTimeIn, header: "Time In"},
	{key: keyTimeOut, header: "Time Out"},
	{key: keyEquipmentNum, header: "Equipment #"},
	{key: keyBegMiles, header: "Beg Miles/Hrs"},
	{key: keyEndMiles, header: "End Miles/Hrs"},
	{key: keyBegRegionalMiles, header: "Beg Regional Miles"},
	{key: keyEndRegionalMiles, header: "End Regional Miles"},
	{key: keyTotalMiles, header: "Total Miles"},
	{key: keyFuelGallons, header: "Fuel Gallons"},
	{key: keyTruckDefects, header: "Truck Defects"},
	{key: keyTrailerDefects, header: "Trailer Defects"},
	{key: keyDefectRemarks, header: "Defect Remarks"},
	{key: keyInjured, header: "Injured"},
	{key: keyInjuryDetails, header: "Injury Details"},
	{key: keySignature, header: "Signature"},
	{key: keyWorkLog, header: "Work Log JSON", aliases: []string{"Work Log"}},
	{key: keyStatus, header: "Status"},
	{key: keyManagerNotes, header: "Manager Notes"},
	{key: keyInvoiceNum, header: "Invoice #", aliases: []string{"Invoice Number", "Invoice Num"}},
}

// Header is the row 1 of a freshly created Master sheet.
func Header() []string {
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.header
	}
	return header
}

// cells returns the stored text of every caller-writable column.
func (f Fields) cells() map[string]string {
	injured := strings.TrimSpace(f.Injured)
	if injured == "" {
		injured = "no"
	}
	return map[string]string{
		keyEmployeeName:     f.EmployeeName,
		keyDate:             f.Date,
		keyDayOfWeek:        f.DayOfWeek,
		keyTimeIn:           f.TimeIn,
		keyTimeOut:          f.TimeOut,
		keyEquipmentNum:     f.EquipmentNum,
		keyBegMiles:         f.BegMiles,
		keyEndMiles:         f.EndMiles,
		keyBegRegionalMiles: f.BegRegionalMiles,
		keyEndRegionalMiles: f.EndRegionalMiles,
		keyTotalMiles:       f.TotalMiles,
		keyFuelGallons:      f.FuelGallons,
		keyTruckDefects:     encodeSet(f.TruckDefects),
		keyTrailerDefects:   encodeSet(f.TrailerDefects),
		keyDefectRemarks:    f.DefectRemarks,
		keyInjured:          injured,
		keyInjuryDetails:    f.InjuryDetails,
		keySignature:        f.Signature,
		keyWorkLog:          encodeWorkLog(f.WorkLogRows),
		keyManagerNotes:     f.ManagerNotes,
		keyInvoiceNum:       f.InvoiceNum,
	}
}

// encodeSet stores defects as a JSON array.
func encodeSet(values []string) string {
	data, _ := json.Marshal(uniqueValues(values))
	return string(data)
}

// uniqueValues drops blanks and duplicates, keeping first-seen order.
func uniqueValues(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func encodeWorkLog(rows []WorkLogRow) string {
	if rows == nil {
		rows = []WorkLogRow{}
	}
	data, _ := json.Marshal(rows)
	return string(data)
}
