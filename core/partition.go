package core

import "fmt"

// PartitionKey identifies one unit of ingestion work: a calendar month.
type PartitionKey struct {
	Year  int
	Month int
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%d_%d", k.Year, k.Month)
}

// Valid reports whether the key names a real month.
func (k PartitionKey) Valid() bool {
	return k.Month >= 1 && k.Month <= 12
}

// Partitions returns every month of the years start..end inclusive,
// oldest first. It returns nil when end < start.
func Partitions(start, end int) []PartitionKey {
	if end < start {
		return nil
	}
	keys := make([]PartitionKey, 0, (end-start+1)*12)
	for year := start; year <= end; year++ {
		for month := 1; month <= 12; month++ {
			keys = append(keys, PartitionKey{Year: year, Month: month})
		}
	}
	return keys
}
