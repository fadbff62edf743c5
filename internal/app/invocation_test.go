package app

import (
	"testing"
	"time"
)

func TestNewInvocation(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		at        time.Time
		wantID    string
	}{
		{
			name:      "utc time",
			operation: "Sync",
			at:        time.Date(2024, 6, 3, 6, 45, 9, 0, time.UTC),
			wantID:    "20240603T064509Z",
		},
		{
			name:      "local time is normalised",
			operation: "Capture",
			at:        time.Date(2024, 6, 3, 8, 45, 9, 0, time.FixedZone("CEST", 2*60*60)),
			wantID:    "20240603T064509Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := NewInvocation(tt.operation, tt.at)

			if inv.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", inv.ID, tt.wantID)
			}
			if inv.Operation != tt.operation {
				t.Errorf("Operation = %q, want %q", inv.Operation, tt.operation)
			}
			if inv.StartedAt.Location() != time.UTC {
				t.Errorf("StartedAt location = %v, want UTC", inv.StartedAt.Location())
			}
		})
	}
}
