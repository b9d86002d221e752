package robot

import "testing"

func TestOperationStateFor(t *testing.T) {
	tests := []struct {
		status  Status
		battery int
		want    OperationState
		wantOK  bool
	}{
		{StatusWorking, 50, OpWorking, true},
		{StatusReturn, 50, OpWorking, true},
		{StatusCharging, 50, OpCharging, true},
		{StatusWaiting, 99, OpIdle, true},
		{StatusWaiting, 100, OpFullChargeIdle, true},
		{StatusDone, 42, OpIdle, true},
		{StatusDone, 100, OpFullChargeIdle, true},
		{StatusError, 50, "", false},
		{Status("bogus"), 50, "", false},
	}
	for _, tt := range tests {
		got, ok := OperationStateFor(tt.status, tt.battery)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("OperationStateFor(%s, %d) = (%q, %v), want (%q, %v)",
				tt.status, tt.battery, got, ok, tt.want, tt.wantOK)
		}
	}
}
