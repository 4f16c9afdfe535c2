package payroll

import "github.com/shopspring/decimal"

// Statutory rates. PAYE bands are lower-exclusive, upper-inclusive.
var (
	payeBandOneFloor   = decimal.NewFromInt(60000)
	payeBandTwoFloor   = decimal.NewFromInt(100000)
	payeBandThreeFloor = decimal.NewFromInt(200000)

	payeBandOneRate   = decimal.RequireFromString("0.10")
	payeBandTwoRate   = decimal.RequireFromString("0.20")
	payeBandThreeRate = decimal.RequireFromString("0.30")

	maternityRate  = decimal.RequireFromString("0.003")
	pensionSixRate = decimal.RequireFromString("0.06")
	pensionTwoRate = decimal.RequireFromString("0.02")
	mutuelleRate   = decimal.RequireFromString("0.005")
)

func amount(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// whole rounds to the nearest currency unit, halves away from zero.
func whole(d decimal.Decimal) float64 {
	return d.Round(0).InexactFloat64()
}

func percentOf(v float64, rate decimal.Decimal) float64 {
	return whole(amount(v).Mul(rate))
}

func PAYE(grossSalary float64) float64 {
	gross := amount(grossSalary)
	if !gross.GreaterThan(payeBandOneFloor) {
		return 0
	}
	tax := decimal.Min(gross, payeBandTwoFloor).Sub(payeBandOneFloor).Mul(payeBandOneRate)
	if gross.GreaterThan(payeBandTwoFloor) {
		tax = tax.Add(decimal.Min(gross, payeBandThreeFloor).Sub(payeBandTwoFloor).Mul(payeBandTwoRate))
	}
	if gross.GreaterThan(payeBandThreeFloor) {
		tax = tax.Add(gross.Sub(payeBandThreeFloor).Mul(payeBandThreeRate))
	}
	return whole(tax)
}

func MaternityLeaveEmployee(grossSalary float64) float64 {
	return percentOf(grossSalary, maternityRate)
}

func MaternityLeaveEmployer(grossSalary float64) float64 {
	return percentOf(grossSalary, maternityRate)
}

func PensionEmployee6(grossSalary float64) float64 {
	return percentOf(grossSalary, pensionSixRate)
}

func PensionEmployer6(grossSalary float64) float64 {
	return percentOf(grossSalary, pensionSixRate)
}

func PensionEmployee2(grossSalary float64) float64 {
	return percentOf(grossSalary, pensionTwoRate)
}

func TotalPension(employee6, employer6, employee2 float64) float64 {
	return amount(employee6).Add(amount(employer6)).Add(amount(employee2)).InexactFloat64()
}

func NetPayBeforeCBHI(grossSalary, paye, maternityEmployee, pensionEmployee6, pensionEmployee2 float64) float64 {
	deductions := amount(paye).Add(amount(maternityEmployee)).Add(amount(pensionEmployee6)).Add(amount(pensionEmployee2))
	return amount(grossSalary).Sub(deductions).InexactFloat64()
}

func Mutuelle(netPayB4CBHI float64) float64 {
	return percentOf(netPayB4CBHI, mutuelleRate)
}

func NetBankPayment(netPayB4CBHI, mutuelle, advance float64) float64 {
	return amount(netPayB4CBHI).Sub(amount(mutuelle)).Sub(amount(advance)).InexactFloat64()
}

// Recompute sets gross salary to basic plus transport and refreshes every
// derived field. Identity, banking and status fields are left untouched.
func Recompute(record Record) Record {
	record.GrossSalary = amount(record.BasicSalary).Add(amount(record.TransportAllowance)).InexactFloat64()
	return Derive(record, Overrides{GrossSalary: &record.GrossSalary})
}

// Derive fills the derived fields in dependency order. Each override wins over
// the calculator for its own field only; later fields are computed from
// whatever values were resolved before them.
func Derive(record Record, o Overrides) Record {
	out := record

	out.GrossSalary = pick(o.GrossSalary, func() float64 {
		return amount(record.BasicSalary).Add(amount(record.TransportAllowance)).InexactFloat64()
	})
	gross := out.GrossSalary

	out.PAYE = pick(o.PAYE, func() float64 { return PAYE(gross) })
	out.MaternityLeaveEmployee = pick(o.MaternityLeaveEmployee, func() float64 { return MaternityLeaveEmployee(gross) })
	out.MaternityLeaveEmployer = pick(o.MaternityLeaveEmployer, func() float64 { return MaternityLeaveEmployer(gross) })
	out.RSSBPensionEmployee6 = pick(o.RSSBPensionEmployee6, func() float64 { return PensionEmployee6(gross) })
	out.RSSBPensionEmployer6 = pick(o.RSSBPensionEmployer6, func() float64 { return PensionEmployer6(gross) })
	out.RSSBPensionEmployee2 = pick(o.RSSBPensionEmployee2, func() float64 { return PensionEmployee2(gross) })
	out.TotalRSSBContribution = pick(o.TotalRSSBContribution, func() float64 {
		return TotalPension(out.RSSBPensionEmployee6, out.RSSBPensionEmployer6, out.RSSBPensionEmployee2)
	})
	out.NetPayB4CBHI = pick(o.NetPayB4CBHI, func() float64 {
		return NetPayBeforeCBHI(gross, out.PAYE, out.MaternityLeaveEmployee, out.RSSBPensionEmployee6, out.RSSBPensionEmployee2)
	})
	out.Mutuelle = pick(o.Mutuelle, func() float64 { return Mutuelle(out.NetPayB4CBHI) })
	out.NetBankList = pick(o.NetBankList, func() float64 {
		return NetBankPayment(out.NetPayB4CBHI, out.Mutuelle, out.Advance)
	})
	return out
}

func pick(supplied *float64, derive func() float64) float64 {
	if supplied != nil {
		return *supplied
	}
	return derive()
}
