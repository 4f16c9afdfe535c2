package payroll

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Field string

const (
	FieldNo                     Field = "no"
	FieldName                   Field = "name"
	FieldPost                   Field = "post"
	FieldAccount                Field = "account"
	FieldBankName               Field = "bankName"
	FieldTelephone              Field = "telephone"
	FieldIDNumber               Field = "idNumber"
	FieldBasicSalary            Field = "basicSalary"
	FieldTransportAllowance     Field = "transportAllowance"
	FieldGrossSalary            Field = "grossSalary"
	FieldPAYE                   Field = "paye"
	FieldMaternityLeaveEmployee Field = "maternityLeaveEmployee"
	FieldMaternityLeaveEmployer Field = "maternityLeaveEmployer"
	FieldRSSBPensionEmployee6   Field = "rssbPensionEmployee6"
	FieldRSSBPensionEmployer6   Field = "rssbPensionEmployer6"
	FieldRSSBPensionEmployee2   Field = "rssbPensionEmployee2"
	FieldTotalRSSBContribution  Field = "totalRssbContribution"
	FieldNetPayB4CBHI           Field = "netPayB4CBHI"
	FieldMutuelle               Field = "mutuelle"
	FieldAdvance                Field = "advance"
	FieldNetBankList            Field = "netBankList"
	FieldStatus                 Field = "status"
)

// RequiredFields must be mapped before any row is read.
var RequiredFields = []Field{FieldName, FieldBasicSalary, FieldTransportAllowance}

var fieldLabels = map[Field]string{
	FieldNo:                     "No",
	FieldName:                   "Names",
	FieldPost:                   "Post",
	FieldAccount:                "Account Number",
	FieldBankName:               "Bank Name",
	FieldTelephone:              "Telephone",
	FieldIDNumber:               "ID Number",
	FieldBasicSalary:            "Basic Salary",
	FieldTransportAllowance:     "Transport Allowance",
	FieldGrossSalary:            "Gross Salary",
	FieldPAYE:                   "PAYE",
	FieldMaternityLeaveEmployee: "Maternity Leave Employee 0.3%",
	FieldMaternityLeaveEmployer: "Maternity Leave Employer 0.3%",
	FieldRSSBPensionEmployee6:   "RSSB Pension Employee 6%",
	FieldRSSBPensionEmployer6:   "RSSB Pension Employer 6%",
	FieldRSSBPensionEmployee2:   "RSSB Pension Employee 2%",
	FieldTotalRSSBContribution:  "Total RSSB Contribution",
	FieldNetPayB4CBHI:           "Net Pay B4 CBHI",
	FieldMutuelle:               "Mutuelle 0.5%",
	FieldAdvance:                "Advance",
	FieldNetBankList:            "Net Bank List",
	FieldStatus:                 "Status",
}

func (f Field) Label() string {
	if label, ok := fieldLabels[f]; ok {
		return label
	}
	return string(f)
}

type synonym struct {
	phrase string
	exact  bool
}

func like(phrases ...string) []synonym {
	out := make([]synonym, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, synonym{phrase: p})
	}
	return out
}

func exactly(phrases ...string) []synonym {
	out := make([]synonym, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, synonym{phrase: p, exact: true})
	}
	return out
}

// fieldSynonyms is scanned top to bottom. Specific fields come before generic
// ones so that e.g. "Net Pay B4 CBHI" is claimed before "Mutuelle" can match
// on "cbhi", and "Bank Name" before "Names". Phrases are in normalized form.
var fieldSynonyms = []struct {
	field    Field
	synonyms []synonym
}{
	{FieldNo, exactly("no", "n", "sn", "sno", "nbr", "num", "number", "nr")},
	{FieldNetPayB4CBHI, like("netpayb4cbhi", "b4cbhi", "beforecbhi", "netb4", "netpaybefore")},
	{FieldNetBankList, like("netbanklist", "netbank", "banklist", "netsalary", "netpayable", "takehome", "netpay")},
	{FieldTotalRSSBContribution, like("totalrssb", "rssbtotal", "totalpension", "pensiontotal", "totalcontribution")},
	{FieldRSSBPensionEmployer6, like("pensionemployer6", "pension6employer", "employer6", "employerpension", "pensionemployer")},
	{FieldRSSBPensionEmployee6, like("pensionemployee6", "pension6employee", "employee6", "employeepension6")},
	{FieldRSSBPensionEmployee2, like("pensionemployee2", "employee2", "pension2", "rssb2")},
	{FieldMaternityLeaveEmployer, like("maternityleaveemployer", "maternityemployer", "materemployer")},
	{FieldMaternityLeaveEmployee, like("maternityleaveemployee", "maternityemployee", "materemployee", "maternity")},
	{FieldMutuelle, like("mutuelle", "cbhi", "healthinsurance")},
	{FieldPAYE, like("paye", "tpr", "incometax", "tax")},
	{FieldGrossSalary, like("grosssalary", "gross")},
	{FieldAdvance, like("advance", "loan")},
	{FieldTransportAllowance, like("transportallowance", "transport", "allowance")},
	{FieldBasicSalary, like("basicsalary", "basic", "basesalary", "basepay", "salary")},
	{FieldAccount, like("accountnumber", "accountno", "bankaccount", "account", "acct", "accno")},
	{FieldBankName, like("bankname", "bank")},
	{FieldTelephone, like("telephone", "phone", "mobile", "tel")},
	{FieldIDNumber, append(like("idnumber", "nationalid", "idno", "nid"), exactly("id")...)},
	{FieldStatus, like("status")},
	{FieldPost, like("post", "position", "designation", "jobtitle", "title", "function")},
	{FieldName, append(like("names", "name", "fullname", "employeename", "staff"), exactly("employee", "employees")...)},
}

// FieldMapping maps a canonical field to the zero-based column it was found in.
type FieldMapping map[Field]int

// BuildFieldMapping matches header cells against the synonym table. For each
// field in priority order the first unclaimed header containing any of its
// synonyms claims that column. Unmatched headers are ignored.
func BuildFieldMapping(headers []string) FieldMapping {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	mapping := FieldMapping{}
	claimed := make([]bool, len(headers))
	for _, entry := range fieldSynonyms {
		for i, header := range normalized {
			if claimed[i] || header == "" {
				continue
			}
			if matchesAny(header, entry.synonyms) {
				mapping[entry.field] = i
				claimed[i] = true
				break
			}
		}
	}
	return mapping
}

func (m FieldMapping) Has(f Field) bool {
	_, ok := m[f]
	return ok
}

// Missing returns the fields from want that have no column, in order.
func (m FieldMapping) Missing(want ...Field) []Field {
	var out []Field
	for _, f := range want {
		if !m.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func matchesAny(header string, synonyms []synonym) bool {
	for _, s := range synonyms {
		if s.exact {
			if header == s.phrase {
				return true
			}
			continue
		}
		if strings.Contains(header, s.phrase) {
			return true
		}
	}
	return false
}

// normalizeHeader lowercases, folds diacritics ("Numéro" -> "numero") and
// drops everything that is not a letter or digit.
func normalizeHeader(header string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, header)
	if err != nil {
		folded = header
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
