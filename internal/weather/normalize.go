package weather

import (
	"database/sql"
	"log"
	"strconv"
	"strings"
)

// Environment Canada sentinel tokens in daily climate CSVs.
const (
	sentinelMissing = "M" // no measurement recorded
	sentinelTrace   = "T" // measurable but negligible, counts as zero
)

// ParseMeasurement converts a raw textual measurement cell into a nullable
// number. Empty cells and the missing-data sentinel are null; a trace amount
// is zero; malformed text is null so one bad cell never aborts a batch.
// The same rules apply to temperature, precipitation, snow and gust fields.
func ParseMeasurement(raw string) sql.NullFloat64 {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, sentinelMissing) {
		return sql.NullFloat64{}
	}
	if strings.EqualFold(s, sentinelTrace) {
		return sql.NullFloat64{Float64: 0, Valid: true}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Printf("weather: unparseable measurement %q treated as missing", raw)
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// ParseMeasurementInt applies ParseMeasurement and truncates to an integer,
// for fields like gust speed that the source reports in whole units.
func ParseMeasurementInt(raw string) sql.NullInt64 {
	f := ParseMeasurement(raw)
	if !f.Valid {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(f.Float64), Valid: true}
}
