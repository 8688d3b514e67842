package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/curbz/cognition/internal/cognition"
	"github.com/curbz/cognition/internal/linkmodel"
	"github.com/curbz/cognition/internal/log"
	"github.com/curbz/cognition/pkg/util"
)

var ErrNotConnected = errors.New("link not connected")

// Config locates the vehicle bus.
type Config struct {
	URL               string        `yaml:"url" env:"LINK_URL"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	StatusDedupWindow time.Duration `yaml:"status_dedup_window"`
	StatusDedupSize   int           `yaml:"status_dedup_size"`
}

// Link connects the decision core to the vehicle bus: inbound messages are
// written to the core's feed and each cycle's report is published.
type Link struct {
	cfg  Config
	core *cognition.Core
	log  *log.Logger

	wmu  sync.Mutex
	conn *websocket.Conn

	// statuses published recently, keyed by severity and text
	recent *expirable.LRU[string, struct{}]

	requestCounter atomic.Int64
}

func New(cfg Config, core *cognition.Core, lg *log.Logger) *Link {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.StatusDedupSize <= 0 {
		cfg.StatusDedupSize = 64
	}
	if cfg.StatusDedupWindow <= 0 {
		cfg.StatusDedupWindow = 2 * time.Second
	}
	return &Link{
		cfg:    cfg,
		core:   core,
		log:    lg.With("component", "link"),
		recent: expirable.NewLRU[string, struct{}](cfg.StatusDedupSize, nil, cfg.StatusDedupWindow),
	}
}

// Connect dials the bus and announces the guidance parameters.
func (l *Link) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: l.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, l.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.cfg.URL, err)
	}
	l.wmu.Lock()
	l.conn = conn
	l.wmu.Unlock()
	l.log.Info("websocket connection established", "url", l.cfg.URL)

	return l.send(linkmodel.TypeGuidanceParams, guidanceParams(l.core.Config()))
}

// Listen reads messages until ctx is cancelled or the connection closes.
// A cancelled context or a normal close returns nil.
func (l *Link) Listen(ctx context.Context) error {
	l.wmu.Lock()
	conn := l.conn
	l.wmu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.log.Info("connection closed")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		l.processMessage(message)
	}
}

// Close sends a close frame and closes the connection.
func (l *Link) Close() error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if l.conn == nil {
		return nil
	}
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := l.conn.Close()
	l.conn = nil
	return err
}

// processMessage handles and dispatches one inbound message.
func (l *Link) processMessage(message []byte) {
	var env linkmodel.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		l.log.Warn("error unmarshaling envelope", "error", err, "raw", string(message))
		return
	}

	err := l.dispatch(env)
	switch {
	case err != nil:
		l.log.Warn("rejected message", "type", env.Type, "req_id", env.RequestID, "error", err)
		l.reply(env.RequestID, err)
	case env.RequestID != 0 && env.Type != linkmodel.TypeResult && env.Type != linkmodel.TypeError:
		l.reply(env.RequestID, nil)
	}
}

func (l *Link) dispatch(env linkmodel.Envelope) error {
	feed := l.core.Feed()
	switch env.Type {
	case linkmodel.TypeState:
		var m linkmodel.State
		if err := decode(env, &m); err != nil {
			return err
		}
		utc, scenario, k := toKinematics(m)
		feed.UpdateClock(utc, scenario)
		feed.UpdateKinematics(k)

	case linkmodel.TypeFlightPlan:
		var m linkmodel.FlightPlan
		if err := decode(env, &m); err != nil {
			return err
		}
		slot, err := cognition.ParsePlanSlot(m.Slot)
		if err != nil {
			return err
		}
		return feed.SetFlightPlan(slot, toFlightPlan(m))

	case linkmodel.TypeTraffic:
		var m linkmodel.Traffic
		if err := decode(env, &m); err != nil {
			return err
		}
		a, err := toTraffic(m)
		if err != nil {
			return err
		}
		return feed.UpdateTraffic(a)

	case linkmodel.TypeGeofence:
		var m linkmodel.Geofence
		if err := decode(env, &m); err != nil {
			return err
		}
		status, fences := toGeofence(m)
		if fences != nil {
			feed.SetFences(fences)
		}
		feed.UpdateGeofence(status)

	case linkmodel.TypeFeasibility:
		var m linkmodel.Feasibility
		if err := decode(env, &m); err != nil {
			return err
		}
		feed.UpdateCrossTrack(cognition.CrossTrackLimits{AllowedDeviation: m.AllowedDeviation})

	case linkmodel.TypeMission:
		var m linkmodel.Mission
		if err := decode(env, &m); err != nil {
			return err
		}
		feed.UpdateMission(cognition.Mission{Start: m.Start, TakeoffComplete: m.TakeoffComplete})

	case linkmodel.TypeMerge:
		var m linkmodel.Merge
		if err := decode(env, &m); err != nil {
			return err
		}
		feed.UpdateMerge(cognition.MergeSchedule{Active: m.Active, RefWPTime: m.RefWPTime, WPMetricTime: m.WPMetricTime})

	case linkmodel.TypeDitch:
		var m linkmodel.Ditch
		if err := decode(env, &m); err != nil {
			return err
		}
		feed.UpdateDitch(toDitch(m))

	case linkmodel.TypePathResult:
		var m linkmodel.PathResult
		if err := decode(env, &m); err != nil {
			return err
		}
		feed.DeliverPath(cognition.PathResult{Waypoints: toWaypoints(m.Waypoints)})

	case linkmodel.TypeReset:
		feed.RequestReset()

	case linkmodel.TypeResult:
		l.log.Debug("result", "req_id", env.RequestID, "success", env.Success)

	case linkmodel.TypeError:
		var m linkmodel.ErrorPayload
		_ = json.Unmarshal(env.Payload, &m)
		l.log.Warn("bus error", "req_id", env.RequestID, "code", m.Code, "message", m.Message)

	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
	return nil
}

func decode(env linkmodel.Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", env.Type, err)
	}
	return nil
}

func (l *Link) reply(reqID int64, err error) {
	env := linkmodel.Envelope{RequestID: reqID, Type: linkmodel.TypeResult, Success: err == nil}
	if err != nil {
		env.Type = linkmodel.TypeError
		env.Payload, _ = json.Marshal(linkmodel.ErrorPayload{Code: 400, Message: err.Error()})
	}
	if werr := l.write(env); werr != nil {
		l.log.Debug("reply not sent", "req_id", reqID, "error", werr)
	}
}

// Publish sends the cycle's command and any flagged status, waypoint and
// path request messages. A status below WARNING repeated within the dedup
// window is dropped.
func (l *Link) Publish(r cognition.Report) error {
	o := r.Output
	var errs []error

	if o.SendCommand {
		errs = append(errs, l.send(linkmodel.TypeCommand, linkmodel.Command{
			Cycle:  r.Cycle,
			Mode:   o.Command.String(),
			Params: o.Params,
			PlanID: o.PlanID,
		}))
	}
	if o.SendStatusTxt && !l.duplicate(o.Severity, o.Status) {
		errs = append(errs, l.send(linkmodel.TypeStatus, linkmodel.Status{Severity: o.Severity.String(), Text: o.Status}))
	}
	if o.SendStatusWPReached {
		errs = append(errs, l.send(linkmodel.TypeWPReached, linkmodel.WPReached{PlanID: o.ReachedPlanID, Index: o.ReachedWP}))
	}
	if o.PathRequest {
		s := o.Search
		errs = append(errs, l.send(linkmodel.TypePathRequest, linkmodel.PathRequest{
			SearchType: uint8(s.Type),
			Start:      fromPosition(s.Start),
			Stop:       fromPosition(s.Stop),
			Velocity:   s.StartVelocity,
		}))
	}
	return errors.Join(errs...)
}

func (l *Link) duplicate(sev cognition.Severity, text string) bool {
	if sev <= cognition.SeverityWarning {
		return false
	}
	key := sev.String() + "|" + text
	if l.recent.Contains(key) {
		l.log.Debug("duplicate status suppressed", "text", text)
		return true
	}
	l.recent.Add(key, struct{}{})
	return false
}

func (l *Link) send(msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	reqID := l.requestCounter.Add(1)
	if err := l.write(linkmodel.Envelope{RequestID: reqID, Type: msgType, Payload: raw}); err != nil {
		return err
	}
	l.log.Debug("sent", "type", msgType, "req_id", reqID)
	return nil
}

func (l *Link) write(env linkmodel.Envelope) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if l.conn == nil {
		return ErrNotConnected
	}
	return util.SendJSON(l.conn, env)
}

func guidanceParams(cfg cognition.Config) linkmodel.GuidanceParams {
	return linkmodel.GuidanceParams{
		DefaultWpSpeed:        cfg.DefaultWpSpeed,
		CaptureRadiusScaling:  cfg.CaptureRadiusScaling,
		GuidanceRadiusScaling: cfg.GuidanceRadiusScaling,
		ClimbAngle:            cfg.ClimbAngle,
		ClimbAngleVRange:      cfg.ClimbAngleVRange,
		ClimbAngleHRange:      cfg.ClimbAngleHRange,
		ClimbRateGain:         cfg.ClimbRateGain,
		MaxClimbRate:          cfg.MaxClimbRate,
		MinClimbRate:          cfg.MinClimbRate,
		YawForward:            cfg.YawForward,
	}
}
