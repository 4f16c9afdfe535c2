package payroll

import "github.com/shopspring/decimal"

// Summarize totals every money column and counts records per status.
func Summarize(records []Record) SheetSummary {
	var t struct {
		basic, transport, gross, paye, matEmployee, matEmployer decimal.Decimal
		pen6, pen6Employer, pen2, pensionTotal, netB4, mutuelle decimal.Decimal
		advance, netBank                                        decimal.Decimal
	}
	summary := SheetSummary{
		EmployeeCount: len(records),
		StatusCounts:  map[Status]int{},
	}
	for _, r := range records {
		summary.StatusCounts[r.Status]++
		t.basic = t.basic.Add(amount(r.BasicSalary))
		t.transport = t.transport.Add(amount(r.TransportAllowance))
		t.gross = t.gross.Add(amount(r.GrossSalary))
		t.paye = t.paye.Add(amount(r.PAYE))
		t.matEmployee = t.matEmployee.Add(amount(r.MaternityLeaveEmployee))
		t.matEmployer = t.matEmployer.Add(amount(r.MaternityLeaveEmployer))
		t.pen6 = t.pen6.Add(amount(r.RSSBPensionEmployee6))
		t.pen6Employer = t.pen6Employer.Add(amount(r.RSSBPensionEmployer6))
		t.pen2 = t.pen2.Add(amount(r.RSSBPensionEmployee2))
		t.pensionTotal = t.pensionTotal.Add(amount(r.TotalRSSBContribution))
		t.netB4 = t.netB4.Add(amount(r.NetPayB4CBHI))
		t.mutuelle = t.mutuelle.Add(amount(r.Mutuelle))
		t.advance = t.advance.Add(amount(r.Advance))
		t.netBank = t.netBank.Add(amount(r.NetBankList))
	}
	summary.BasicSalary = t.basic.InexactFloat64()
	summary.TransportAllowance = t.transport.InexactFloat64()
	summary.GrossSalary = t.gross.InexactFloat64()
	summary.PAYE = t.paye.InexactFloat64()
	summary.MaternityLeaveEmployee = t.matEmployee.InexactFloat64()
	summary.MaternityLeaveEmployer = t.matEmployer.InexactFloat64()
	summary.RSSBPensionEmployee6 = t.pen6.InexactFloat64()
	summary.RSSBPensionEmployer6 = t.pen6Employer.InexactFloat64()
	summary.RSSBPensionEmployee2 = t.pen2.InexactFloat64()
	summary.TotalRSSBContribution = t.pensionTotal.InexactFloat64()
	summary.NetPayB4CBHI = t.netB4.InexactFloat64()
	summary.Mutuelle = t.mutuelle.InexactFloat64()
	summary.Advance = t.advance.InexactFloat64()
	summary.NetBankList = t.netBank.InexactFloat64()
	return summary
}
