// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strconv"
	"strings"
	"time"
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func boolLabel(b bool) string { return strconv.FormatBool(b) }
