package payroll

import "fmt"

var (
	sampleNames = []string{
		"Jean Bosco Habimana", "Aline Mukamana", "Eric Niyonzima", "Claudine Uwimana",
		"Patrick Nshimiyimana", "Diane Ingabire", "Emmanuel Hakizimana", "Grace Umutoni",
		"Olivier Mugisha", "Josiane Nyirahabimana", "Fabrice Tuyishime", "Sandrine Uwase",
	}
	samplePosts = []string{"Security Guard", "Shift Supervisor", "Patrol Officer", "Control Room Operator"}
	sampleBanks = []string{"Bank of Kigali", "Equity Bank", "I&M Bank", "BPR"}
)

// SampleRecords builds count deterministic demo employees numbered from
// startNo+1. Every derived figure comes from the calculator.
func SampleRecords(startNo, count int) []Record {
	out := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		n := startNo + i + 1
		basic := float64(16181 + (i%8)*24000)
		record := Record{
			No:                 n,
			Name:               sampleNames[i%len(sampleNames)],
			Post:               samplePosts[i%len(samplePosts)],
			Account:            fmt.Sprintf("4001-%04d-%04d", 1000+n, 7*n%10000),
			BankName:           sampleBanks[i%len(sampleBanks)],
			Telephone:          fmt.Sprintf("07880%05d", n),
			IDNumber:           fmt.Sprintf("11990800%08d", n),
			BasicSalary:        basic,
			TransportAllowance: 12000,
			Status:             StatusActive,
		}
		if i%5 == 4 {
			record.Advance = 5000
		}
		out = append(out, Recompute(record))
	}
	return out
}
