package prayer

import (
	"fmt"
	"sort"
	"strings"
)

const (
	DefaultMethod = 2 // ISNA
	DefaultSchool = 1 // Hanafi
)

// Methods lists the calculation methods offered to users, keyed by the
// provider's numeric code.
var Methods = map[int]string{
	1:  "University of Islamic Sciences, Karachi",
	2:  "Islamic Society of North America (ISNA)",
	3:  "Muslim World League (MWL)",
	4:  "Umm Al-Qura University, Makkah",
	5:  "Egyptian General Authority of Survey",
	7:  "Institute of Geophysics, University of Tehran",
	8:  "Gulf Region",
	9:  "Kuwait",
	10: "Qatar",
	11: "Majlis Ugama Islam Singapura, Singapore",
	12: "Union Organization islamic de France",
	13: "Diyanet İşleri Başkanlığı, Turkey",
	14: "Spiritual Administration of Muslims of Russia",
}

// Schools are the Asr juristic methods.
var Schools = map[int]string{
	0: "Standard (Shafi'i, Maliki, Hanbali)",
	1: "Hanafi",
}

// SuggestedTimezones is shown as a hint during setup. Any IANA name is accepted.
var SuggestedTimezones = []string{
	"America/New_York", "America/Chicago", "America/Los_Angeles", "America/Toronto",
	"America/Mexico_City", "America/Vancouver", "America/Phoenix",
	"Europe/London", "Europe/Berlin", "Europe/Paris", "Europe/Madrid", "Europe/Istanbul",
	"Asia/Tokyo", "Asia/Shanghai", "Asia/Singapore", "Asia/Dubai", "Asia/Riyadh",
	"Asia/Dhaka", "Asia/Kolkata", "Asia/Jakarta", "Asia/Seoul",
	"Australia/Sydney", "Africa/Cairo", "Africa/Lagos", "Africa/Johannesburg",
}

func MethodName(code int) string {
	if n, ok := Methods[code]; ok {
		return n
	}
	return fmt.Sprintf("method %d", code)
}

func SchoolName(code int) string {
	if n, ok := Schools[code]; ok {
		return n
	}
	return fmt.Sprintf("school %d", code)
}

// MethodList renders the method catalogue, one "code - name" per line.
func MethodList() string {
	codes := make([]int, 0, len(Methods))
	for c := range Methods {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	var b strings.Builder
	for _, c := range codes {
		fmt.Fprintf(&b, "%d - %s\n", c, Methods[c])
	}
	return strings.TrimRight(b.String(), "\n")
}
