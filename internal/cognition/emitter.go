package cognition

import (
	"github.com/curbz/cognition/pkg/geometry"
	"github.com/curbz/cognition/pkg/util"
)

const (
	// MaxCommandParams is the number of numeric parameters a command can carry.
	MaxCommandParams = 10
	// MaxStatusLen is the longest status text emitted, in bytes.
	MaxStatusLen = 250

	maxQueuedStatus = 32
)

// Command is a guidance decision before it is written to the output.
type Command struct {
	Mode   CommandMode
	Params []float64
	PlanID string
}

func velCommand(track, gs, vs float64) Command {
	return Command{Mode: ModeVector, Params: []float64{geometry.NormalizeHeading(track), gs, vs}}
}

func p2pCommand(p geometry.Position, speed float64) Command {
	return Command{Mode: ModePoint2Point, Params: []float64{p.Lat, p.Lon, p.Alt, speed}}
}

func planCommand(slot PlanSlot, planID string, wp int) Command {
	return Command{Mode: slot.Mode(), Params: []float64{float64(wp)}, PlanID: planID}
}

func modeCommand(mode CommandMode, params ...float64) Command {
	return Command{Mode: mode, Params: params}
}

// Output is what the core hands to the transport after a cycle.
type Output struct {
	Command     CommandMode
	Params      []float64
	PlanID      string
	SendCommand bool

	Status        string
	Severity      Severity
	SendStatusTxt bool

	SendStatusWPReached bool
	ReachedWP           int
	ReachedPlanID       string

	PathRequest bool
	Search      PathSearch
}

func (o *Output) clear() {
	*o = Output{Command: ModeNoop}
}

// SetGuidanceVelCmd commands a velocity vector: true track in degrees,
// ground speed and vertical speed (positive up) in m/s.
func (o *Output) SetGuidanceVelCmd(track, gs, vs float64) {
	o.setGuidanceMode(ModeVector, geometry.NormalizeHeading(track), gs, vs)
}

// SetGuidanceFlightPlan commands flight plan following of the given slot
// starting at waypoint wp.
func (o *Output) SetGuidanceFlightPlan(slot PlanSlot, planID string, wp int) {
	o.setGuidanceMode(slot.Mode(), float64(wp))
	o.PlanID = planID
}

// SetGuidanceP2P commands a direct flight to p at the given speed.
func (o *Output) SetGuidanceP2P(p geometry.Position, speed float64) {
	o.setGuidanceMode(ModePoint2Point, p.Lat, p.Lon, p.Alt, speed)
}

func (o *Output) setGuidanceMode(mode CommandMode, params ...float64) {
	if len(params) > MaxCommandParams {
		params = params[:MaxCommandParams]
	}
	o.Command = mode
	o.Params = append([]float64(nil), params...)
	o.PlanID = ""
	o.SendCommand = true
}

func (o *Output) apply(cmd Command) {
	n := len(cmd.Params)
	switch {
	case cmd.Mode == ModeVector && n >= 3:
		o.SetGuidanceVelCmd(cmd.Params[0], cmd.Params[1], cmd.Params[2])
	case (cmd.Mode == ModePrimaryFlightPlan || cmd.Mode == ModeSecondaryFlightPlan) && n >= 1:
		slot := PrimaryPlan
		if cmd.Mode == ModeSecondaryFlightPlan {
			slot = SecondaryPlan
		}
		o.SetGuidanceFlightPlan(slot, cmd.PlanID, int(cmd.Params[0]))
	case cmd.Mode == ModePoint2Point && n >= 4:
		o.SetGuidanceP2P(geometry.Position{Lat: cmd.Params[0], Lon: cmd.Params[1], Alt: cmd.Params[2]}, cmd.Params[3])
	default:
		o.setGuidanceMode(cmd.Mode, cmd.Params...)
	}
}

// StatusMessage is one severity tagged status text.
type StatusMessage struct {
	Severity Severity
	Text     string
}

// statusQueue releases the most severe message first, oldest first within
// a severity.
type statusQueue struct {
	items []StatusMessage
}

func (q *statusQueue) push(m StatusMessage) {
	if len(q.items) >= maxQueuedStatus {
		worst := 0
		for i, it := range q.items {
			if it.Severity >= q.items[worst].Severity {
				worst = i
			}
		}
		if q.items[worst].Severity <= m.Severity {
			return
		}
		q.items = append(q.items[:worst], q.items[worst+1:]...)
	}
	q.items = append(q.items, m)
}

func (q *statusQueue) pop() (StatusMessage, bool) {
	if len(q.items) == 0 {
		return StatusMessage{}, false
	}
	best := 0
	for i, it := range q.items {
		if it.Severity < q.items[best].Severity {
			best = i
		}
	}
	m := q.items[best]
	q.items = append(q.items[:best], q.items[best+1:]...)
	return m, true
}

func (q *statusQueue) len() int { return len(q.items) }

func (q *statusQueue) clear() { q.items = q.items[:0] }

// SendStatus queues a status message. At most one queued message is
// written to the output per cycle; the command path is never affected.
func (c *Core) SendStatus(sev Severity, format string, args ...any) {
	text := util.ClampText(c.printer.Sprintf(format, args...), MaxStatusLen)
	c.statuses.push(StatusMessage{Severity: sev, Text: text})
	c.event(Event{Kind: EventStatus, Source: "status", Severity: sev, Text: text})

	switch {
	case sev <= SeverityError:
		c.log.Error("status", "severity", sev.String(), "text", text, "cycle", c.cycle)
	case sev <= SeverityWarning:
		c.log.Warn("status", "severity", sev.String(), "text", text, "cycle", c.cycle)
	default:
		c.log.Info("status", "severity", sev.String(), "text", text, "cycle", c.cycle)
	}
}

// emit writes the cycle's single command and at most one queued status.
func (c *Core) emit(cmd Command) {
	out := &c.state.Output
	out.apply(cmd)

	if m, ok := c.statuses.pop(); ok {
		out.Status = m.Text
		out.Severity = m.Severity
		out.SendStatusTxt = true
	}
}
