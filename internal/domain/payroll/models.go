package payroll

import "time"

type Status string

type Sheet struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Period    string    `json:"period"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
}

// Record is one employee's payroll line for a sheet. Basic salary, transport
// allowance and advance are the editable inputs; the remaining money fields
// are derived by Recompute unless an import supplied them.
type Record struct {
	ID      string `json:"id"`
	SheetID string `json:"sheetId"`
	No      int    `json:"no"`

	Name      string `json:"name"`
	Post      string `json:"post"`
	Account   string `json:"account"`
	BankName  string `json:"bankName"`
	Telephone string `json:"telephone"`
	IDNumber  string `json:"idNumber"`

	BasicSalary        float64 `json:"basicSalary"`
	TransportAllowance float64 `json:"transportAllowance"`
	Advance            float64 `json:"advance"`

	GrossSalary            float64 `json:"grossSalary"`
	PAYE                   float64 `json:"paye"`
	MaternityLeaveEmployee float64 `json:"maternityLeaveEmployee"`
	MaternityLeaveEmployer float64 `json:"maternityLeaveEmployer"`
	RSSBPensionEmployee6   float64 `json:"rssbPensionEmployee6"`
	RSSBPensionEmployer6   float64 `json:"rssbPensionEmployer6"`
	RSSBPensionEmployee2   float64 `json:"rssbPensionEmployee2"`
	TotalRSSBContribution  float64 `json:"totalRssbContribution"`
	NetPayB4CBHI           float64 `json:"netPayB4CBHI"`
	Mutuelle               float64 `json:"mutuelle"`
	NetBankList            float64 `json:"netBankList"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Overrides carries derived amounts supplied by an external source. A nil
// field is derived by the calculator; a non-nil field is kept verbatim.
type Overrides struct {
	GrossSalary            *float64
	PAYE                   *float64
	MaternityLeaveEmployee *float64
	MaternityLeaveEmployer *float64
	RSSBPensionEmployee6   *float64
	RSSBPensionEmployer6   *float64
	RSSBPensionEmployee2   *float64
	TotalRSSBContribution  *float64
	NetPayB4CBHI           *float64
	Mutuelle               *float64
	NetBankList            *float64
}

type RecordInput struct {
	Name               string  `json:"name"`
	Post               string  `json:"post"`
	Account            string  `json:"account"`
	BankName           string  `json:"bankName"`
	Telephone          string  `json:"telephone"`
	IDNumber           string  `json:"idNumber"`
	BasicSalary        float64 `json:"basicSalary"`
	TransportAllowance float64 `json:"transportAllowance"`
	Advance            float64 `json:"advance"`
	Status             Status  `json:"status"`
}

type RecordDetails struct {
	Name      string `json:"name"`
	Post      string `json:"post"`
	Account   string `json:"account"`
	BankName  string `json:"bankName"`
	Telephone string `json:"telephone"`
	IDNumber  string `json:"idNumber"`
}

type ImportStatus string

type ImportResult struct {
	Status  ImportStatus `json:"status"`
	Records []Record     `json:"records"`
	Errors  []string     `json:"errors"`
	Mapping FieldMapping `json:"mapping,omitempty"`
}

type ImportRun struct {
	ID         string       `json:"id"`
	SheetID    string       `json:"sheetId"`
	Source     string       `json:"source"`
	Status     ImportStatus `json:"status"`
	Accepted   int          `json:"accepted"`
	Rejected   int          `json:"rejected"`
	Processed  int          `json:"processed"`
	Total      int          `json:"total"`
	Errors     []string     `json:"errors"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
}

type SheetSummary struct {
	EmployeeCount          int            `json:"employeeCount"`
	StatusCounts           map[Status]int `json:"statusCounts"`
	BasicSalary            float64        `json:"basicSalary"`
	TransportAllowance     float64        `json:"transportAllowance"`
	GrossSalary            float64        `json:"grossSalary"`
	PAYE                   float64        `json:"paye"`
	MaternityLeaveEmployee float64        `json:"maternityLeaveEmployee"`
	MaternityLeaveEmployer float64        `json:"maternityLeaveEmployer"`
	RSSBPensionEmployee6   float64        `json:"rssbPensionEmployee6"`
	RSSBPensionEmployer6   float64        `json:"rssbPensionEmployer6"`
	RSSBPensionEmployee2   float64        `json:"rssbPensionEmployee2"`
	TotalRSSBContribution  float64        `json:"totalRssbContribution"`
	NetPayB4CBHI           float64        `json:"netPayB4CBHI"`
	Mutuelle               float64        `json:"mutuelle"`
	Advance                float64        `json:"advance"`
	NetBankList            float64        `json:"netBankList"`
}
