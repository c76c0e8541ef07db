package service

import (
	"testing"
	"time"
)

func TestWaitingFeeFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		seconds int64
		rate    float64
		want    float64
	}{
		{0, 0.5, 0},
		{1, 0.5, 0.5},
		{30, 0.5, 0.5},
		{60, 0.5, 0.5},
		{61, 0.5, 1.0},
		{90, 0.5, 1.0},
		{120, 0.5, 1.0},
		{121, 0.5, 1.5},
		{420, 0.5, 3.5},
		{90, 1.25, 2.5},
	}

	for _, tc := range cases {
		if got := WaitingFeeFor(tc.seconds, tc.rate); got != tc.want {
			t.Errorf("WaitingFeeFor(%d, %v) = %v, want %v", tc.seconds, tc.rate, got, tc.want)
		}
	}
}

func TestNextWaitingAccrual(t *testing.T) {
	t.Parallel()

	tick := 30 * time.Second
	ceiling := 7 * time.Minute
	rate := 0.5

	cases := []struct {
		name          string
		elapsed       int64
		wantSeconds   int64
		wantFee       float64
		wantTerminate bool
	}{
		{"first tick", 0, 30, 0.5, false},
		{"second tick", 30, 60, 0.5, false},
		{"into second minute", 60, 90, 1.0, false},
		{"one short of ceiling", 360, 390, 3.5, false},
		{"reaches ceiling", 390, 420, 3.5, true},
		{"past ceiling", 420, 450, 4.0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seconds, fee, terminate := NextWaitingAccrual(tc.elapsed, tick, ceiling, rate)
			if seconds != tc.wantSeconds {
				t.Errorf("seconds = %d, want %d", seconds, tc.wantSeconds)
			}
			if fee != tc.wantFee {
				t.Errorf("fee = %v, want %v", fee, tc.wantFee)
			}
			if terminate != tc.wantTerminate {
				t.Errorf("terminate = %v, want %v", terminate, tc.wantTerminate)
			}
		})
	}
}
