package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/curbz/cognition/internal/cognition"
	"github.com/curbz/cognition/pkg/geometry"
)

func TestRecordAndReadFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.rec")
	rec, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		r := cognition.Report{
			Cycle:          uint64(i),
			Time:           start.Add(time.Duration(i) * 100 * time.Millisecond),
			Phase:          cognition.PhaseCruise,
			EffectivePhase: cognition.PhaseCruise,
			Authority:      cognition.AuthorityNominal,
			PlanID:         "survey",
			Kinematics:     cognition.Kinematics{Position: geometry.Position{Lat: 37, Lon: -76, Alt: float64(100 + i)}},
		}
		r.Output.Command = cognition.ModePrimaryFlightPlan
		r.Output.Params = []float64{2}
		if i == 2 {
			r.Output.Status = "reached waypoint 1"
			r.Output.SendStatusTxt = true
		}
		if err := rec.Record(r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	frames, err := ReadFrames(f)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[2].Alt != 103 || frames[2].Phase != "CRUISE" || frames[2].PlanID != "survey" {
		t.Errorf("frame 3 = %+v", frames[2])
	}
	if frames[1].Status != "reached waypoint 1" || frames[0].Status != "" {
		t.Errorf("status not recorded only when sent: %q %q", frames[0].Status, frames[1].Status)
	}
	if frames[0].UnixMilli != start.Add(100*time.Millisecond).UnixMilli() {
		t.Errorf("time = %d", frames[0].UnixMilli)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	if err := r.Record(cognition.Report{}); err != nil {
		t.Errorf("Record on nil: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}
}
