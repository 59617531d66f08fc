package progress

import (
	"sort"
	"time"

	"eduquest-progress/internal/domain"
)

// ComputeStreak derives the current and longest daily streak from a sparse
// activity log. The current streak walks backward from today; a missing or
// unstudied today does not break it, any earlier gap does. The result depends
// only on the log contents and today.
func ComputeStreak(activity domain.ActivityLog, today time.Time) domain.StreakSummary {
	day, err := time.Parse(domain.DayLayout, domain.DayKey(today))
	if err != nil {
		return domain.StreakSummary{}
	}

	current := 0
	if studied(activity, day) {
		current++
	}
	for d := day.AddDate(0, 0, -1); studied(activity, d); d = d.AddDate(0, 0, -1) {
		current++
	}

	days := make([]time.Time, 0, len(activity))
	for key, entry := range activity {
		if !entry.Studied {
			continue
		}
		d, err := time.Parse(domain.DayLayout, key)
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest, run := 0, 0
	for i, d := range days {
		if i > 0 && days[i-1].AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	if current > longest {
		longest = current
	}
	return domain.StreakSummary{Current: current, Longest: longest}
}

func studied(activity domain.ActivityLog, day time.Time) bool {
	return activity[day.Format(domain.DayLayout)].Studied
}

// RecordActivity folds a study event into the log: the day becomes studied and
// minutes accumulate.
func RecordActivity(activity domain.ActivityLog, at time.Time, minutes int) domain.ActivityLog {
	if activity == nil {
		activity = domain.ActivityLog{}
	}
	key := domain.DayKey(at)
	entry := activity[key]
	entry.Date = key
	entry.Studied = true
	if minutes > 0 {
		entry.MinutesStudied += minutes
	}
	activity[key] = entry
	return activity
}
