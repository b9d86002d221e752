// Package robot keeps the per-robot operational record: position,
// battery, derived status and the daily utilisation buckets.
package robot

// Status is the stored operational state of a robot.
type Status string

const (
	StatusWorking  Status = "WORKING"
	StatusReturn   Status = "RETURN"
	StatusWaiting  Status = "WAITING"
	StatusDone     Status = "DONE"
	StatusCharging Status = "CHARGING"
	StatusError    Status = "ERROR"
)

// OperationState is the utilisation bucket a status accumulates into.
// It is kept separately from Status: statuses change with every robot
// event, buckets only when the mapped state actually flips.
type OperationState string

const (
	OpWorking        OperationState = "working"
	OpCharging       OperationState = "charging"
	OpIdle           OperationState = "idle"
	OpFullChargeIdle OperationState = "full_charge_idle"
)

// OperationStates lists every bucket in report order.
var OperationStates = [4]OperationState{OpWorking, OpFullChargeIdle, OpCharging, OpIdle}

// OperationStateFor maps a status and battery level to a utilisation
// bucket. ERROR maps to nothing: error time is not accumulated.
func OperationStateFor(s Status, batteryLevel int) (OperationState, bool) {
	switch s {
	case StatusWorking, StatusReturn:
		return OpWorking, true
	case StatusCharging:
		return OpCharging, true
	case StatusWaiting, StatusDone:
		if batteryLevel >= 100 {
			return OpFullChargeIdle, true
		}
		return OpIdle, true
	}
	return "", false
}
