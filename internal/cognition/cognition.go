package cognition

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/curbz/cognition/internal/log"
)

const tracerName = "github.com/curbz/cognition/internal/cognition"

// EventKind classifies a cycle event.
type EventKind string

const (
	EventPhase    EventKind = "phase"
	EventConflict EventKind = "conflict"
	EventStatus   EventKind = "status"
)

// Event is a state transition or status raised during a cycle.
type Event struct {
	Cycle    uint64
	Time     time.Time
	Kind     EventKind
	Source   string
	From     string
	To       string
	Severity Severity
	Text     string
}

// Report is the result of one cycle.
type Report struct {
	Cycle          uint64
	Time           time.Time
	Phase          FlightPhase
	EffectivePhase FlightPhase
	Authority      Authority
	PlanID         string
	Returning      bool
	Kinematics     Kinematics
	Output         Output
	Events         []Event
}

// Core is the flight cognition decision core. RunCycle and
// ResetFlightPhases are serialized; inbound data goes through Feed.
type Core struct {
	mu       sync.Mutex
	cfg      Config
	log      *log.Logger
	feed     *Feed
	state    FlightState
	request  *PathRequest
	statuses statusQueue
	printer  *message.Printer
	tracer   trace.Tracer

	cycle       uint64
	events      []Event
	lastUTC     time.Time
	lastScen    float64
	staleCycles int
	staleWarned bool
}

// New returns a core in IDLE with no flight plan. A nil logger is allowed.
func New(cfg Config, lg *log.Logger) *Core {
	if err := cfg.Validate(); err != nil {
		lg.Warnf("invalid cognition config, falling back to defaults: %v", err)
		cfg = DefaultConfig()
	}
	tag, err := language.Parse(cfg.StatusLocale)
	if err != nil {
		tag = language.English
	}

	c := &Core{
		cfg:     cfg,
		log:     lg,
		feed:    newFeed(),
		request: &PathRequest{},
		printer: message.NewPrinter(tag),
		tracer:  otel.Tracer(tracerName),
	}
	c.state.Inputs = newInputs()
	c.state.Machines = newMachines()
	c.state.Output.clear()
	return c
}

// Feed returns the inbound side of the core.
func (c *Core) Feed() *Feed { return c.feed }

// Config returns the effective configuration.
func (c *Core) Config() Config { return c.cfg }

// State returns a copy of the flight state as of the last cycle.
func (c *Core) State() FlightState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Request = c.request.Poll()
	return s
}

// RunCycle executes one undivided decision cycle: latch inputs, track the
// flight plan, step the conflict machines, run the flight phase machine
// and emit the command.
func (c *Core) RunCycle(ctx context.Context) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, span := c.tracer.Start(ctx, "cognition.cycle")
	defer span.End()

	c.cycle++
	c.events = c.events[:0]

	l := c.feed.latch()
	if l.reset {
		c.resetFlightPhases()
	}
	c.latchInputs(l)
	c.state.Output.clear()

	var (
		cmd  Command
		auth Authority
	)
	if c.inputsStale(l.kinematicsNew) {
		cmd, auth = c.holdCommand(), AuthorityHold
	} else {
		c.trackFlightPlan()
		var held bool
		cmd, auth, held = c.manageConflicts()
		pcmd, pauth := c.FlightPhases(held)
		// an emergency entered this cycle outranks the conflict command
		if !held || !c.conflictPhase() {
			cmd, auth = pcmd, pauth
		}
	}
	c.emit(cmd)

	m := &c.state.Machines
	r := Report{
		Cycle:          c.cycle,
		Time:           c.state.Inputs.UTCTime,
		Phase:          m.Phase,
		EffectivePhase: c.effectivePhase(),
		Authority:      auth,
		PlanID:         c.state.Progress.CurrentPlanID,
		Returning:      c.ReturnToNextWP(),
		Kinematics:     c.state.Inputs.Kinematics,
		Output:         c.state.Output,
		Events:         append([]Event(nil), c.events...),
	}
	span.SetAttributes(
		attribute.Int64("cognition.cycle", int64(c.cycle)),
		attribute.String("cognition.phase", r.EffectivePhase.String()),
		attribute.String("cognition.authority", auth.String()),
		attribute.String("cognition.command", r.Output.Command.String()),
	)
	return r, nil
}

// latchInputs installs the cycle's inputs and matches a delivered path
// result to the outstanding request.
func (c *Core) latchInputs(l latched) {
	in := l.inputs

	// time never runs backwards within a flight
	if !c.lastUTC.IsZero() && in.UTCTime.Before(c.lastUTC) {
		c.log.Warn("utc time regressed, holding last value", "got", in.UTCTime, "last", c.lastUTC)
		in.UTCTime = c.lastUTC
	}
	if in.ScenarioTime < c.lastScen {
		c.log.Warn("scenario time regressed, holding last value", "got", in.ScenarioTime, "last", c.lastScen)
		in.ScenarioTime = c.lastScen
	}
	c.lastUTC, c.lastScen = in.UTCTime, in.ScenarioTime
	c.state.Inputs = in

	if l.path != nil && !c.request.deliver(*l.path) {
		c.log.Warn("path result without outstanding request dropped", "waypoints", len(l.path.Waypoints))
	}
}

// inputsStale tracks how long kinematics have gone without an update.
func (c *Core) inputsStale(fresh bool) bool {
	if fresh {
		c.staleCycles = 0
		c.staleWarned = false
		return false
	}
	c.staleCycles++
	if c.staleCycles < c.cfg.InputStaleCycles {
		return false
	}
	if !c.staleWarned {
		c.staleWarned = true
		c.SendStatus(SeverityWarning, "no vehicle state for %d cycles, holding", c.staleCycles)
	}
	return true
}

// airborne reports whether the vehicle is flying.
func (c *Core) airborne() bool {
	switch c.state.Machines.Phase {
	case PhaseIdle, PhaseTaxi:
		return false
	case PhaseLanding:
		return !c.state.Inputs.Kinematics.Landed
	}
	return true
}

// holdCommand is the safe default: keep track and speed level in the air,
// do nothing on the ground.
func (c *Core) holdCommand() Command {
	if !c.airborne() {
		return modeCommand(ModeNoop)
	}
	k := c.state.Inputs.Kinematics
	return velCommand(k.Heading, k.GroundSpeed, 0)
}

func (c *Core) event(e Event) {
	e.Cycle = c.cycle
	e.Time = c.state.Inputs.UTCTime
	c.events = append(c.events, e)
}

// ResetFlightPhases returns the core to IDLE with every conflict machine
// in NOOPC and no path request, keeping the flight plan definitions. It
// never runs inside a cycle.
func (c *Core) ResetFlightPhases() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetFlightPhases()
}

func (c *Core) resetFlightPhases() {
	c.state.Machines = newMachines()
	c.request.reset()
	c.statuses.clear()
	c.state.Output.clear()
	c.lastUTC, c.lastScen = time.Time{}, 0
	c.staleCycles, c.staleWarned = 0, false

	p := &c.state.Progress
	plans, revisions, received := p.Plans, p.revisions, p.PrimaryFPReceived
	*p = PlanProgress{Plans: plans, revisions: revisions, PrimaryFPReceived: received}
	for slot := PrimaryPlan; slot <= SecondaryPlan; slot++ {
		p.NextPlanWP[slot] = firstWP(p.Plans[slot])
		p.NextFeasibleWP[slot] = p.NextPlanWP[slot]
	}
	c.switchPlan(PrimaryPlan)
	c.log.Info("flight phases reset")
}
