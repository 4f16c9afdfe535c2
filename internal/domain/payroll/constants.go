package payroll

import "math"

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPaid     Status = "paid"

	ImportIdle       ImportStatus = "idle"
	ImportProcessing ImportStatus = "processing"
	ImportSuccess    ImportStatus = "success"
	ImportFailed     ImportStatus = "error"

	ImportSourceCSV      = "csv"
	ImportSourceWorkbook = "xlsx"

	DefaultCurrency = "RWF"

	MaxSampleRecords = 200

	// MaxAmount bounds every money value in either direction.
	MaxAmount = 1e12
	// MaxRecordNo is the largest sequence number a record can carry.
	MaxRecordNo = math.MaxInt32
)

var Statuses = []Status{StatusActive, StatusInactive, StatusPaid}

func (s Status) Valid() bool {
	for _, candidate := range Statuses {
		if s == candidate {
			return true
		}
	}
	return false
}
