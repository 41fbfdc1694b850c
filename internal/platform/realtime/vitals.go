package realtime

import "strings"

// vitalRange is the inclusive band considered normal for a metric.
type vitalRange struct {
	low, high float64
}

// vitalRanges holds the alerting thresholds per metric. Readings outside the
// band raise a device alert to the clinical roles.
var vitalRanges = map[string]vitalRange{
	"heart_rate":       {40, 120},
	"spo2":             {90, 100},
	"temperature":      {35.0, 39.5},
	"systolic":         {90, 180},
	"diastolic":        {50, 110},
	"respiratory_rate": {8, 30},
	"glucose":          {60, 250},
}

// AbnormalReading reports whether a metric value falls outside its normal
// band. Unknown metrics are never abnormal; the gateway cannot judge what it
// has no thresholds for.
func AbnormalReading(metric string, value float64) bool {
	r, ok := vitalRanges[strings.ToLower(metric)]
	if !ok {
		return false
	}
	return value < r.low || value > r.high
}
