package cognition

import (
	"fmt"
	"strings"
)

// FlightPhase is the top level operational mode of the mission.
type FlightPhase int

const (
	PhaseIdle FlightPhase = iota
	PhaseTaxi
	PhaseTakeoff
	PhaseClimb
	PhaseCruise
	PhaseDescent
	PhaseEmergencyDescent
	PhaseApproach
	PhaseLanding
	PhaseMerging
)

var phaseNames = [...]string{
	"IDLE",
	"TAXI",
	"TAKEOFF",
	"CLIMB",
	"CRUISE",
	"DESCENT",
	"EMERGENCY_DESCENT",
	"APPROACH",
	"LANDING",
	"MERGING",
}

func (p FlightPhase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("FlightPhase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p FlightPhase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *FlightPhase) UnmarshalText(b []byte) error {
	v, err := parseEnum(string(b), phaseNames[:])
	if err != nil {
		return fmt.Errorf("flight phase: %w", err)
	}
	*p = FlightPhase(v)
	return nil
}

// CommandMode is the guidance mode of an emitted command.
type CommandMode int

const (
	ModePrimaryFlightPlan CommandMode = iota
	ModeSecondaryFlightPlan
	ModeVector
	ModePoint2Point
	ModeOrbit
	ModeHelix
	ModeTakeoff
	ModeLand
	ModeSpeedChange
	ModeNoop
)

var modeNames = [...]string{
	"PRIMARY_FLIGHTPLAN",
	"SECONDARY_FLIGHTPLAN",
	"VECTOR",
	"POINT2POINT",
	"ORBIT",
	"HELIX",
	"TAKEOFF",
	"LAND",
	"SPEED_CHANGE",
	"NOOP",
}

func (m CommandMode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("CommandMode(%d)", int(m))
	}
	return modeNames[m]
}

func (m CommandMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *CommandMode) UnmarshalText(b []byte) error {
	v, err := parseEnum(string(b), modeNames[:])
	if err != nil {
		return fmt.Errorf("command mode: %w", err)
	}
	*m = CommandMode(v)
	return nil
}

// Outcome is the result a phase function reports for the current cycle.
type Outcome int

const (
	Initializing Outcome = iota
	Running
	Succeeded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Initializing:
		return "INITIALIZING"
	case Running:
		return "RUNNING"
	case Succeeded:
		return "SUCCESS"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// ResolutionType is the kind of manoeuvre used to resolve a traffic conflict.
type ResolutionType int

const (
	ResolutionNone ResolutionType = iota
	ResolutionSpeed
	ResolutionAltitude
	ResolutionTrack
	ResolutionVerticalSpeed
	ResolutionSearch
)

var resolutionNames = [...]string{
	"NONE",
	"SPEED",
	"ALTITUDE",
	"TRACK",
	"VERTICALSPEED",
	"SEARCH",
}

func (r ResolutionType) String() string {
	if r < 0 || int(r) >= len(resolutionNames) {
		return fmt.Sprintf("ResolutionType(%d)", int(r))
	}
	return resolutionNames[r]
}

func (r ResolutionType) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *ResolutionType) UnmarshalText(b []byte) error {
	s := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(string(b))), "_RESOLUTION")
	v, err := parseEnum(s, resolutionNames[:])
	if err != nil {
		return fmt.Errorf("resolution type: %w", err)
	}
	*r = ResolutionType(v)
	return nil
}

// ConflictState is the state of a conflict sub-machine.
type ConflictState int

const (
	ConflictNoop ConflictState = iota
	ConflictInitialize
	ConflictCompute
	ConflictResolve
	ConflictComplete
)

func (s ConflictState) String() string {
	return [...]string{
		"NOOPC",
		"INITIALIZE",
		"COMPUTE",
		"RESOLVE",
		"COMPLETE",
	}[s]
}

// RequestState is the state of the path replan handshake.
type RequestState int

const (
	RequestIdle RequestState = iota
	RequestPending
	RequestReady
)

func (s RequestState) String() string {
	return [...]string{
		"NIL",
		"PROCESSING",
		"RESPONDED",
	}[s]
}

// Severity orders status messages, most severe first.
type Severity int

const (
	SeverityEmergency Severity = iota
	SeverityAlert
	SeverityCritical
	SeverityError
	SeverityWarning
	SeverityNotice
	SeverityInfo
	SeverityDebug
)

var severityNames = [...]string{
	"EMERGENCY",
	"ALERT",
	"CRITICAL",
	"ERROR",
	"WARNING",
	"NOTICE",
	"INFO",
	"DEBUG",
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := parseEnum(string(b), severityNames[:])
	if err != nil {
		return fmt.Errorf("severity: %w", err)
	}
	*s = Severity(v)
	return nil
}

// Authority names the component whose command was emitted in a cycle.
type Authority int

const (
	AuthorityNominal Authority = iota
	AuthorityPhase
	AuthorityMerge
	AuthorityGeofence
	AuthorityTraffic
	AuthorityXtrack
	AuthorityReturn
	AuthorityHold
)

func (a Authority) String() string {
	return [...]string{
		"NOMINAL",
		"PHASE",
		"MERGE",
		"GEOFENCE",
		"TRAFFIC",
		"XTRACK",
		"RETURN",
		"HOLD",
	}[a]
}

// PlanSlot selects one of the two flight plan slots.
type PlanSlot int

const (
	PrimaryPlan PlanSlot = iota
	SecondaryPlan
)

func (s PlanSlot) String() string {
	if s == SecondaryPlan {
		return "secondary"
	}
	return "primary"
}

// ParsePlanSlot accepts "primary" or "secondary" in any case.
func ParsePlanSlot(s string) (PlanSlot, error) {
	v, err := parseEnum(s, []string{"PRIMARY", "SECONDARY"})
	if err != nil {
		return PrimaryPlan, fmt.Errorf("plan slot: %w", err)
	}
	return PlanSlot(v), nil
}

// Mode returns the flight plan following mode for the slot.
func (s PlanSlot) Mode() CommandMode {
	if s == SecondaryPlan {
		return ModeSecondaryFlightPlan
	}
	return ModePrimaryFlightPlan
}

// other returns the opposite slot.
func (s PlanSlot) other() PlanSlot { return 1 - s }

func parseEnum(s string, names []string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown value %q", s)
}
