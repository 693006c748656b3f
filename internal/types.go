package internal

import (
	"fmt"
	"time"
)

// 扫描统计
type ScanStats struct {
	Roots     int
	Entries   int
	Hashed    int
	Errors    int
	StartTime time.Time
	EndTime   time.Time
}

// 根目录扫描结果
type RootStats struct {
	Root    string
	Entries int
	Hashed  int
	Errors  int
}

// Add 累加单个根目录的统计
func (s *ScanStats) Add(r RootStats) {
	s.Roots++
	s.Entries += r.Entries
	s.Hashed += r.Hashed
	s.Errors += r.Errors
}

func (s *ScanStats) String() string {
	return fmt.Sprintf("roots=%d entries=%d hashed=%d errors=%d elapsed=%v",
		s.Roots, s.Entries, s.Hashed, s.Errors, s.EndTime.Sub(s.StartTime))
}
