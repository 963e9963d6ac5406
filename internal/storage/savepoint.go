package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SavePoint triggers a save once at least Changes changes happened and
// Interval passed since the last successful save.
type SavePoint struct {
	Interval time.Duration
	Changes  int64
}

func (sp SavePoint) String() string {
	return fmt.Sprintf("%d %d", int64(sp.Interval/time.Second), sp.Changes)
}

// DefaultSavePoints is "3600 1 300 100 60 10000".
var DefaultSavePoints = []SavePoint{
	{Interval: time.Hour, Changes: 1},
	{Interval: 5 * time.Minute, Changes: 100},
	{Interval: time.Minute, Changes: 10000},
}

// ParseSavePoints parses "<seconds> <changes>" pairs separated by spaces.
// An empty string disables automatic saves.
func ParseSavePoints(s string) ([]SavePoint, error) {
	fields := strings.Fields(s)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("storage: save points need <seconds> <changes> pairs, got %q", s)
	}
	points := make([]SavePoint, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		secs, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil || secs < 1 {
			return nil, fmt.Errorf("storage: invalid save point seconds %q", fields[i])
		}
		changes, err := strconv.ParseInt(fields[i+1], 10, 64)
		if err != nil || changes < 0 {
			return nil, fmt.Errorf("storage: invalid save point changes %q", fields[i+1])
		}
		points = append(points, SavePoint{Interval: time.Duration(secs) * time.Second, Changes: changes})
	}
	return points, nil
}

// FormatSavePoints is the inverse of ParseSavePoints.
func FormatSavePoints(points []SavePoint) string {
	parts := make([]string, len(points))
	for i, sp := range points {
		parts[i] = sp.String()
	}
	return strings.Join(parts, " ")
}
