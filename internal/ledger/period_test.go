package ledger

import (
	"testing"
	"time"
)

func TestPeriodStartDaily(t *testing.T) {
	now := time.Date(2024, 3, 10, 17, 45, 12, 0, time.UTC)
	got := periodStart(now, PeriodDaily, 0, time.UTC)
	want := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("periodStart = %v, want %v", got, want)
	}
}

func TestPeriodStartMonthly(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		anchor int
		want   time.Time
	}{
		{
			name:   "anchor already passed this month",
			now:    time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC),
			anchor: 15,
			want:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "anchor not yet reached resolves to last month",
			now:    time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC),
			anchor: 15,
			want:   time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "anchor day equals today",
			now:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			anchor: 15,
			want:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "anchor 31 clamps in short month",
			now:    time.Date(2023, 4, 30, 12, 0, 0, 0, time.UTC),
			anchor: 31,
			want:   time.Date(2023, 4, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "anchor 31 clamps in february",
			now:    time.Date(2023, 2, 28, 12, 0, 0, 0, time.UTC),
			anchor: 31,
			want:   time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "anchor 30 in leap february resolves to the 29th",
			now:    time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
			anchor: 30,
			want:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "january wraps to december anniversary",
			now:    time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC),
			anchor: 20,
			want:   time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "missing anchor defaults to first of month",
			now:    time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
			anchor: 0,
			want:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := periodStart(tt.now, PeriodMonthly, tt.anchor, time.UTC)
			if !got.Equal(tt.want) {
				t.Fatalf("periodStart = %v, want %v", got, tt.want)
			}
			if got.After(tt.now) {
				t.Fatalf("period start %v lies in the future of %v", got, tt.now)
			}
		})
	}
}
