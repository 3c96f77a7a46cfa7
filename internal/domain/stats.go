package domain

// Weekdays holds the short day labels, indexed 0=Sunday..6=Saturday.
var Weekdays = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// ResponseTimeBucketLabels names the five response time buckets.
var ResponseTimeBucketLabels = [5]string{"<1h", "1-6h", "6-24h", "1-3d", ">3d"}

// Stats is the aggregate statistics payload of the dashboard.
type Stats struct {
	TotalReviews    int     `json:"total_reviews"`
	AvgRating       float64 `json:"avg_rating"`
	AnsweredCount   int     `json:"answered_count"`
	ReplyRate       float64 `json:"reply_rate"`
	UnansweredCount int     `json:"unanswered_count"`

	ByStars         []StarCount     `json:"by_stars"`
	ByDay           []DayCount      `json:"by_day"`
	ByHour          []HourCount     `json:"by_hour"`
	ByWeekday       []WeekdayCount  `json:"by_weekday"`
	ByLocationStars []LocationStars `json:"by_location_stars"`

	// ResponseTimeP50 is the median response time in seconds.
	ResponseTimeP50     *int64         `json:"response_time_p50"`
	SLAUnder24hRate     *float64       `json:"sla_under_24h_rate,omitempty"`
	ResponseTimeBuckets []int          `json:"response_time_buckets,omitempty"`
	ByDayAvgRating      []DayAverage   `json:"by_day_avg_rating,omitempty"`
	TopKeywords         []KeywordCount `json:"top_keywords,omitempty"`
}

type StarCount struct {
	Stars int `json:"stars"`
	Count int `json:"count"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type WeekdayCount struct {
	Weekday string `json:"weekday"`
	Count   int    `json:"count"`
}

// LocationStars is the per-star review count of one location.
type LocationStars struct {
	Location string `json:"location"`
	R1       int    `json:"r1"`
	R2       int    `json:"r2"`
	R3       int    `json:"r3"`
	R4       int    `json:"r4"`
	R5       int    `json:"r5"`
}

// Add increments the counter for the given star rating by n.
func (l *LocationStars) Add(stars, n int) {
	switch stars {
	case 1:
		l.R1 += n
	case 2:
		l.R2 += n
	case 3:
		l.R3 += n
	case 4:
		l.R4 += n
	case 5:
		l.R5 += n
	}
}

type DayAverage struct {
	Date string  `json:"date"`
	Avg  float64 `json:"avg"`
}

type KeywordCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// EmptyStats returns the zero result: fixed-size histograms are present and
// zero-filled, sparse series are empty and optional fields are absent.
func EmptyStats() *Stats {
	s := &Stats{
		ByStars:         make([]StarCount, 0, MaxRating),
		ByDay:           []DayCount{},
		ByHour:          make([]HourCount, 24),
		ByWeekday:       make([]WeekdayCount, len(Weekdays)),
		ByLocationStars: []LocationStars{},
	}
	for stars := MaxRating; stars >= MinRating; stars-- {
		s.ByStars = append(s.ByStars, StarCount{Stars: stars})
	}
	for h := range s.ByHour {
		s.ByHour[h].Hour = h
	}
	for d, label := range Weekdays {
		s.ByWeekday[d].Weekday = label
	}
	return s
}
