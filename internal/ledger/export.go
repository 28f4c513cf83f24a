package ledger

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/phillip-england/timecard/internal/credentials"
	"github.com/phillip-england/timecard/internal/session"
	"github.com/phillip-england/timecard/internal/sheet"
)

var workLogHeader = []string{
	"",
	"FROM/LOAD TIME",
	"TO/DEL. TIME",
	"TRUCK/EQUIP. #",
	"# OF LOADS",
	"UNIT OF MEAS.",
	"MATERIAL TYPE",
	"SOURCE/SUPPLIER",
	"JOB NAME/DESCRIPTION",
	"JOB #/PHASE #",
	"JOB HOURS",
}

// EmployeeSheet names the sheet an employee's approved cards are copied to.
// Names that would land on a system sheet are prefixed.
func EmployeeSheet(employee string) string {
	name := sheet.SanitizeName(employee)
	for _, reserved := range []string{Table, credentials.Table, session.Table} {
		if strings.EqualFold(name, reserved) {
			return sheet.SanitizeName("Employee - " + name)
		}
	}
	return name
}

func (l *Ledger) exportCard(ctx context.Context, card TimeCard) error {
	name := EmployeeSheet(card.EmployeeName)
	if err := l.sheets.InsertTable(ctx, name, nil); err != nil {
		return err
	}
	return sheet.AppendRows(ctx, l.sheets, name, l.exportBlock(card))
}

// exportBlock lays out one approved card as a printable block of label/value
// rows.
func (l *Ledger) exportBlock(card TimeCard) [][]string {
	blank := []string{""}
	rows := [][]string{
		blank,
		{l.company + " - EMPLOYEE TIME CARD"},
		{"SUBMISSION ID:", card.SubmissionID},
		{"SUBMISSION TIMESTAMP:", card.Timestamp},
		{"APPROVED BY MANAGER:", l.now().UTC().Format(time.RFC3339)},
	}
	if card.ManagerNotes != "" {
		rows = append(rows, []string{"MANAGER NOTES:", card.ManagerNotes})
	}
	if card.InvoiceNum != "" {
		rows = append(rows, []string{"INVOICE #:", card.InvoiceNum})
	}
	rows = append(rows,
		[]string{"EMPLOYEE NAME:", card.EmployeeName},
		[]string{"DATE:", sheet.NormalizeDate(card.Date)},
		[]string{"DAY OF WEEK:", card.DayOfWeek},
		[]string{"TIME IN:", sheet.NormalizeClock(card.TimeIn)},
		[]string{"TIME OUT:", sheet.NormalizeClock(card.TimeOut)},
		blank,
		workLogHeader,
	)
	for i, w := range card.WorkLogRows {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			sheet.NormalizeClock(w.LoadTime),
			sheet.NormalizeClock(w.DelTime),
			w.TruckEquip,
			w.NumLoads,
			w.UnitMeas,
			w.MaterialType,
			w.SourceSupplier,
			w.JobDesc,
			w.JobNum,
			w.JobHours,
		})
	}
	rows = append(rows,
		blank,
		[]string{"TRUCK/TRACTOR INFO:"},
		[]string{"EQUIPMENT #:", card.EquipmentNum},
		[]string{"BEG-MILES/HRS:", card.BegMiles},
		[]string{"END-MILES/HRS:", card.EndMiles},
		[]string{"BEG-REGIONAL MILES:", card.BegRegionalMiles},
		[]string{"END-REGIONAL MILES:", card.EndRegionalMiles},
		[]string{"TOTAL MILES:", card.TotalMiles},
		[]string{"FUEL GALLONS:", card.FuelGallons},
		[]string{"TRUCK DEFECTS:", strings.Join(card.TruckDefects, ", ")},
		[]string{"TRAILER DEFECTS:", strings.Join(card.TrailerDefects, ", ")},
	)
	if card.DefectRemarks != "" {
		rows = append(rows, []string{"DEFECT REMARKS:", card.DefectRemarks})
	}
	rows = append(rows,
		blank,
		[]string{"WERE YOU INJURED ON THE JOB TODAY?", card.Injured},
	)
	if card.InjuryDetails != "" {
		rows = append(rows, []string{"INJURY DETAILS:", card.InjuryDetails})
	}
	rows = append(rows,
		blank,
		[]string{"EMPLOYEE SIGNATURE:", card.Signature},
		[]string{"END OF TIME CARD"},
	)
	return rows
}
