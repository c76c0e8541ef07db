package service

import "time"

// NextWaitingAccrual computes the waiting counters after one ticker interval.
// The fee is derived deterministically from the elapsed seconds: whole minutes,
// ceiling-rounded, times the per-minute rate. terminate is set once the
// accumulated waiting time reaches the hard ceiling.
//
// Pure function so the accrual logic is testable without a live timer.
func NextWaitingAccrual(waitingSeconds int64, tick, ceiling time.Duration, perMinuteRate float64) (seconds int64, fee float64, terminate bool) {
	seconds = waitingSeconds + int64(tick.Seconds())
	fee = WaitingFeeFor(seconds, perMinuteRate)
	terminate = seconds >= int64(ceiling.Seconds())
	return seconds, fee, terminate
}

// WaitingFeeFor returns ceil(waitingSeconds/60) * perMinuteRate.
func WaitingFeeFor(waitingSeconds int64, perMinuteRate float64) float64 {
	minutes := (waitingSeconds + 59) / 60
	return float64(minutes) * perMinuteRate
}
