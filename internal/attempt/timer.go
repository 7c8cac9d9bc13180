package attempt

import "time"

// Timer logic is pure arithmetic over the persisted start time. The deadline
// is always recomputed server-side; nothing here keeps running state, so
// enforcement survives process restarts.

// Deadline returns the attempt deadline. ok is false for untimed tests
// (timeLimitMinutes <= 0).
func Deadline(startedAt time.Time, timeLimitMinutes int) (time.Time, bool) {
	if timeLimitMinutes <= 0 {
		return time.Time{}, false
	}
	return startedAt.Add(time.Duration(timeLimitMinutes) * time.Minute), true
}

// RemainingSeconds returns the seconds left before the deadline, clamped at
// zero. limited is false for untimed tests, in which case remaining is 0 and
// must be ignored by the caller.
func RemainingSeconds(startedAt time.Time, timeLimitMinutes int, now time.Time) (remaining int64, limited bool) {
	deadline, ok := Deadline(startedAt, timeLimitMinutes)
	if !ok {
		return 0, false
	}
	d := deadline.Sub(now)
	if d <= 0 {
		return 0, true
	}
	return int64(d / time.Second), true
}

// Expired reports whether the authoritative deadline has passed. Untimed
// attempts never expire.
func Expired(startedAt time.Time, timeLimitMinutes int, now time.Time) bool {
	deadline, ok := Deadline(startedAt, timeLimitMinutes)
	if !ok {
		return false
	}
	return now.After(deadline)
}

// ElapsedSeconds is the server-derived time spent on the attempt, clamped to
// the time limit for timed tests.
func ElapsedSeconds(startedAt time.Time, timeLimitMinutes int, now time.Time) int64 {
	elapsed := int64(now.Sub(startedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	if timeLimitMinutes > 0 {
		limit := int64(timeLimitMinutes) * 60
		if elapsed > limit {
			return limit
		}
	}
	return elapsed
}
