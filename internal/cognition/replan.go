package cognition

import (
	"errors"

	"github.com/curbz/cognition/pkg/geometry"
)

var (
	ErrRequestOutstanding = errors.New("path request already outstanding")
	ErrNoRequest          = errors.New("no path result ready")
	ErrNotOwner           = errors.New("path request owned by another requester")
)

// SearchType selects the path search algorithm of the external planner.
type SearchType uint8

// PathSearch describes one replan request.
type PathSearch struct {
	Type          SearchType
	Start         geometry.Position
	Stop          geometry.Position
	StartVelocity [3]float64
}

// PathResult is the planner's answer. No waypoints means no path exists.
type PathResult struct {
	Waypoints []Waypoint
}

// PathRequest is the single outstanding request to the path search
// service. Requesters hold a reference to it and poll it each cycle.
type PathRequest struct {
	state  RequestState
	owner  string
	search PathSearch
	result PathResult
}

// Post registers a new request for owner. It fails without touching the
// outstanding request when one exists.
func (r *PathRequest) Post(owner string, s PathSearch) error {
	if r.state != RequestIdle {
		return ErrRequestOutstanding
	}
	r.state = RequestPending
	r.owner = owner
	r.search = s
	r.result = PathResult{}
	return nil
}

// Poll returns the request state.
func (r *PathRequest) Poll() RequestState { return r.state }

// Owner returns the requester holding the request, empty when idle.
func (r *PathRequest) Owner() string { return r.owner }

// Search returns the parameters of the outstanding request.
func (r *PathRequest) Search() PathSearch { return r.search }

// Consume hands the result to its owner and frees the request.
func (r *PathRequest) Consume(owner string) (PathResult, error) {
	if r.state != RequestReady {
		return PathResult{}, ErrNoRequest
	}
	if r.owner != owner {
		return PathResult{}, ErrNotOwner
	}
	res := r.result
	r.reset()
	return res, nil
}

// Cancel abandons owner's request. A result arriving later is dropped.
func (r *PathRequest) Cancel(owner string) {
	if r.state != RequestIdle && r.owner == owner {
		r.reset()
	}
}

// deliver stores a planner result. Results with no request pending are
// ignored since nothing can be matched to them.
func (r *PathRequest) deliver(res PathResult) bool {
	if r.state != RequestPending {
		return false
	}
	r.result = res
	r.state = RequestReady
	return true
}

func (r *PathRequest) reset() {
	*r = PathRequest{}
}

// FindNewPath asks the path search service for a route from start to stop.
// The request is emitted on the output in the cycle it is posted; a request
// that collides with an outstanding one is rejected and reported once per
// conflict episode of the requesting machine.
func (c *Core) FindNewPath(m *ConflictMachine, searchType SearchType, start geometry.Position, velocity [3]float64, stop geometry.Position) error {
	s := PathSearch{Type: searchType, Start: start, Stop: stop, StartVelocity: velocity}
	if err := c.request.Post(m.Name, s); err != nil {
		if !m.rejectNoted {
			m.rejectNoted = true
			c.SendStatus(SeverityWarning, "%s: path request rejected, %s request outstanding", m.Name, c.request.Owner())
		}
		return err
	}
	m.rejectNoted = false
	out := &c.state.Output
	out.PathRequest = true
	out.Search = s
	c.SendStatus(SeverityWarning, "%s: no feasible route, requesting new path", m.Name)
	c.log.Debug("path request posted", "owner", m.Name, "type", int(searchType))
	return nil
}
