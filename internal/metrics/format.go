package metrics

import (
	"fmt"
	"strings"
	"time"
)

// FormatBytes renders a byte count in the largest unit that keeps it
// readable (B/KB/MB/GB).
func FormatBytes(b int64) string {
	switch {
	case b >= 1024*1024*1024:
		return fmt.Sprintf("%.1f GB", float64(b)/(1024*1024*1024))
	case b >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// FormatDuration renders a duration as M:SS, switching to H:MM:SS once it
// reaches an hour.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatNumber inserts thousands separators into an integer.
func FormatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	out := string(result)
	if neg {
		out = "-" + out
	}
	return out
}

// Banner renders a single-line progress summary of a snapshot: progress%,
// processed bytes, throughput, CPM, elapsed and ETA. The headless runner
// formats its own banner and does not call it.
func Banner(s Snapshot) string {
	etaStr := "?"
	if s.ETA != nil {
		etaStr = FormatDuration(*s.ETA)
	}

	progressStr := "n/a"
	if s.TotalBytes > 0 {
		progressStr = fmt.Sprintf("%.1f%%", s.ProgressPercent)
	}

	return fmt.Sprintf(
		"[%s] %s/%s  |  %s/s  |  %s lines (%.0f cpm)  |  ok:%s fail:%s skip:%s retry:%s  |  elapsed %s  ETA %s",
		progressStr,
		FormatBytes(s.ProcessedBytes), FormatBytes(s.TotalBytes),
		FormatBytes(int64(s.BytesPerSec)),
		FormatNumber(s.ProcessedLines), s.CPM,
		FormatNumber(s.Success), FormatNumber(s.Failed), FormatNumber(s.Ignored), FormatNumber(s.Retries),
		FormatDuration(s.Elapsed), etaStr,
	)
}
