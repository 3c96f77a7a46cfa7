package service

import (
	"math"
	"slices"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/TheHatt/revboard/internal/daterange"
	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
)

const (
	hourSeconds = 3600
	daySeconds  = 24 * hourSeconds

	// slaSeconds is the response time a reply must not exceed to meet the SLA.
	slaSeconds = daySeconds
)

// rowSummary holds the histograms built from one pass over the stat rows.
type rowSummary struct {
	days      map[string]int
	daySums   map[string]int
	hours     [24]int
	weekdays  [7]int
	responses []int64
}

// summarizeRows buckets rows by local day, hour and weekday and collects
// response times. When weekday is set only that day is counted in the
// weekday histogram.
func summarizeRows(rows []repository.StatRow, loc *time.Location, weekday *int) rowSummary {
	s := rowSummary{
		days:    make(map[string]int),
		daySums: make(map[string]int),
	}

	for _, row := range rows {
		local := row.PublishedAt.In(loc)
		day := local.Format(daterange.DateLayout)

		s.days[day]++
		s.daySums[day] += row.Rating
		s.hours[local.Hour()]++

		wd := int(local.Weekday())
		if weekday == nil || *weekday == wd {
			s.weekdays[wd]++
		}

		if row.AnsweredAt != nil {
			secs := int64(math.Round(row.AnsweredAt.Sub(row.PublishedAt).Seconds()))
			s.responses = append(s.responses, max(secs, 0))
		}
	}

	return s
}

// apply writes the summary into stats, which must come from EmptyStats.
func (s rowSummary) apply(stats *domain.Stats) {
	dates := make([]string, 0, len(s.days))
	for d := range s.days {
		dates = append(dates, d)
	}
	slices.Sort(dates)

	for _, d := range dates {
		n := s.days[d]
		stats.ByDay = append(stats.ByDay, domain.DayCount{Date: d, Count: n})
		stats.ByDayAvgRating = append(stats.ByDayAvgRating, domain.DayAverage{
			Date: d,
			Avg:  round2(float64(s.daySums[d]) / float64(n)),
		})
	}

	for h, n := range s.hours {
		stats.ByHour[h].Count = n
	}
	for wd, n := range s.weekdays {
		stats.ByWeekday[wd].Count = n
	}

	if len(s.responses) == 0 {
		return
	}

	secs := slices.Clone(s.responses)
	slices.Sort(secs)

	p50 := median(secs)
	stats.ResponseTimeP50 = &p50

	buckets := make([]int, len(domain.ResponseTimeBucketLabels))
	met := 0
	for _, v := range secs {
		buckets[responseBucket(v)]++
		if v <= slaSeconds {
			met++
		}
	}
	rate := float64(met) / float64(len(secs))
	stats.SLAUnder24hRate = &rate
	stats.ResponseTimeBuckets = buckets
}

// median returns the middle of an ascending, non-empty slice. For an even
// count it is the mean of the two middle values rounded half up.
func median(sorted []int64) int64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid] + 1) / 2
}

// responseBucket maps a response time to its index in
// domain.ResponseTimeBucketLabels.
func responseBucket(secs int64) int {
	switch {
	case secs < hourSeconds:
		return 0
	case secs < 6*hourSeconds:
		return 1
	case secs < daySeconds:
		return 2
	case secs < 3*daySeconds:
		return 3
	default:
		return 4
	}
}

// starCounts fills the zero-filled 5..1 histogram from rating groups.
func starCounts(stats *domain.Stats, groups []repository.GroupCount) {
	for _, g := range groups {
		if !domain.ValidRating(g.Rating) {
			continue
		}
		stats.ByStars[domain.MaxRating-g.Rating].Count = g.Count
	}
}

// locationStars builds one row per location from (location, rating) groups,
// ordered by location name using German collation.
func locationStars(groups []repository.GroupCount, names map[string]string) []domain.LocationStars {
	byID := make(map[string]*domain.LocationStars)
	order := make([]string, 0)
	for _, g := range groups {
		row, ok := byID[g.LocationID]
		if !ok {
			name, found := names[g.LocationID]
			if !found {
				name = g.LocationID
			}
			row = &domain.LocationStars{Location: name}
			byID[g.LocationID] = row
			order = append(order, g.LocationID)
		}
		row.Add(g.Rating, g.Count)
	}

	out := make([]domain.LocationStars, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}

	c := collate.New(language.German)
	slices.SortStableFunc(out, func(a, b domain.LocationStars) int {
		return c.CompareString(a.Location, b.Location)
	})
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
