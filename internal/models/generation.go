package models

import "time"

// GenerationRecord is one row of generation history. Unsuccessful attempts
// are recorded with Cost 0.
type GenerationRecord struct {
	ID            int64
	UserID        int64
	Timestamp     time.Time
	Model         string
	Request       string
	Cost          int64
	GenSuccessful bool
	GenType       string
}

// Stats is the admin dashboard snapshot.
type Stats struct {
	TotalUsers int
	Segments   map[Segment]int
	Payments   PaymentStats
	Bonuses    int64
}

// SegmentShare returns the percentage of users in seg, rounded down.
func (s Stats) SegmentShare(seg Segment) int {
	if s.TotalUsers == 0 {
		return 0
	}
	return s.Segments[seg] * 100 / s.TotalUsers
}
