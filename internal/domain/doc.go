// Package domain models German station weather data published as static
// files by the DWD processing jobs, and the cities bound to those stations.
//
// # Data Sources
//
// Every dataset is a static file produced by an offline job and pulled on
// demand by this module:
//
//	Live telemetry       10-minute station readings, refreshed continuously
//	Station archive      one row per day per station, multi-decade
//	Daily snapshot       one file per date with a row per station
//	Rolling averages     centered N-day rolling means per station
//	Yearly mean by day   reference-period means for one calendar day
//	Hourly reference     interpolated reference-period values per hour of day
//	Threshold days       yearly counts of days above/below a temperature
//
// # Conventions
//
// Missing readings:
//
//	DWD files use -999 as the "no value" sentinel. Parsers turn the sentinel,
//	empty cells and unparsable numbers into nil. A nil reading is never
//	treated as zero.
//
// Dates:
//
//	Selected dates and archive dates are "2006-01-02" strings. Live readings
//	carry "200601021504" timestamps in UTC. Date strings are fixed-width and
//	zero-padded, so lexicographic order is chronological order ([DateRange]).
//	Calendar-day datasets are addressed by a month/day pair ([CalendarDay]).
//
// Reference zone:
//
//	"Today" is the current date in Europe/Berlin, the zone the source data is
//	published in, regardless of the host's local zone. See [IsToday].
//
// # Identity
//
// Records are immutable once parsed. A refetch always builds new values, so
// pointer identity can be used by the selector pipeline as a change signal.
// City IDs are deterministic SHA-256 hashes of name|lat|lon. See [NewCity].
package domain
