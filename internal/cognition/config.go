package cognition

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/text/language"

	"github.com/curbz/cognition/pkg/util"
)

// Config holds the guidance parameters and the core's tuning. Speeds are
// m/s, distances and altitudes are meters, angles are degrees.
type Config struct {
	CycleHz               float64 `yaml:"cycle_hz" env:"CYCLE_HZ"`
	DefaultWpSpeed        float64 `yaml:"default_wp_speed"`
	CaptureRadiusScaling  float64 `yaml:"capture_radius_scaling"`
	MinCaptureRadius      float64 `yaml:"min_capture_radius"`
	GuidanceRadiusScaling float64 `yaml:"guidance_radius_scaling"`
	XtrkDev               float64 `yaml:"xtrk_dev"`
	ClimbAngle            float64 `yaml:"climb_angle"`
	ClimbAngleVRange      float64 `yaml:"climb_angle_v_range"`
	ClimbAngleHRange      float64 `yaml:"climb_angle_h_range"`
	ClimbRateGain         float64 `yaml:"climb_rate_gain"`
	MaxClimbRate          float64 `yaml:"max_climb_rate"`
	MinClimbRate          float64 `yaml:"min_climb_rate"`
	YawForward            bool    `yaml:"yaw_forward"`

	TakeoffAltitude      float64 `yaml:"takeoff_altitude"`
	AltitudeTolerance    float64 `yaml:"altitude_tolerance"`
	ClimbStallCycles     int     `yaml:"climb_stall_cycles"`
	ApproachAltitude     float64 `yaml:"approach_altitude"`
	ApproachDistance     float64 `yaml:"approach_distance"`
	EmergencyDescentRate float64 `yaml:"emergency_descent_rate"`
	EmergencyFloor       float64 `yaml:"emergency_floor"`
	ResolveStallCycles   int     `yaml:"resolve_stall_cycles"`
	InputStaleCycles     int     `yaml:"input_stale_cycles"`
	MinSpeed             float64 `yaml:"min_speed"`
	MaxSpeed             float64 `yaml:"max_speed"`
	SpeedTolerance       float64 `yaml:"speed_tolerance"`

	SearchType         SearchType       `yaml:"search_type"`
	ResolutionPriority []ResolutionType `yaml:"resolution_priority"`
	ConflictPhases     []FlightPhase    `yaml:"conflict_phases"`
	StatusLocale       string           `yaml:"status_locale" env:"STATUS_LOCALE"`
}

type config struct {
	Cognition Config `yaml:"cognition"`
}

// LoadConfig reads the cognition section of the YAML file at path and
// validates it.
func LoadConfig(path string) (Config, error) {
	cfg, err := util.LoadConfig[config](path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Cognition.Validate(); err != nil {
		return Config{}, err
	}
	return cfg.Cognition, nil
}

// DefaultConfig returns a configuration suitable for a small multirotor.
func DefaultConfig() Config {
	var c Config
	_ = c.Validate()
	return c
}

// Validate fills defaults for unset values and rejects inconsistent ones.
func (c *Config) Validate() error {
	def := func(v *float64, d float64) {
		if *v == 0 {
			*v = d
		}
	}
	defInt := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}

	def(&c.CycleHz, 10)
	def(&c.DefaultWpSpeed, 5)
	def(&c.CaptureRadiusScaling, 2)
	def(&c.MinCaptureRadius, 5)
	def(&c.GuidanceRadiusScaling, 1)
	def(&c.XtrkDev, 20)
	def(&c.ClimbAngle, 15)
	def(&c.ClimbAngleVRange, 5)
	def(&c.ClimbAngleHRange, 100)
	def(&c.ClimbRateGain, 0.5)
	def(&c.MaxClimbRate, 3)
	def(&c.MinClimbRate, -3)
	def(&c.TakeoffAltitude, 10)
	def(&c.AltitudeTolerance, 5)
	defInt(&c.ClimbStallCycles, 100)
	def(&c.ApproachAltitude, 30)
	def(&c.ApproachDistance, 200)
	def(&c.EmergencyDescentRate, 2)
	def(&c.EmergencyFloor, 10)
	defInt(&c.ResolveStallCycles, 300)
	defInt(&c.InputStaleCycles, 20)
	def(&c.MinSpeed, 1)
	def(&c.MaxSpeed, 15)
	def(&c.SpeedTolerance, 0.5)
	if len(c.ResolutionPriority) == 0 {
		c.ResolutionPriority = []ResolutionType{ResolutionTrack, ResolutionSpeed, ResolutionAltitude, ResolutionVerticalSpeed}
	}
	if len(c.ConflictPhases) == 0 {
		c.ConflictPhases = []FlightPhase{PhaseClimb, PhaseCruise, PhaseDescent, PhaseApproach}
	}
	if c.StatusLocale == "" {
		c.StatusLocale = "en"
	}

	var errs []error
	if c.CycleHz < 0 {
		errs = append(errs, fmt.Errorf("cycle_hz must be positive, got %v", c.CycleHz))
	}
	if c.MinClimbRate > 0 {
		errs = append(errs, fmt.Errorf("min_climb_rate must not be positive, got %v", c.MinClimbRate))
	}
	if c.MaxClimbRate < 0 {
		errs = append(errs, fmt.Errorf("max_climb_rate must not be negative, got %v", c.MaxClimbRate))
	}
	if c.MinSpeed > c.MaxSpeed {
		errs = append(errs, fmt.Errorf("min_speed %v exceeds max_speed %v", c.MinSpeed, c.MaxSpeed))
	}
	if c.EmergencyDescentRate < 0 {
		errs = append(errs, fmt.Errorf("emergency_descent_rate must be positive, got %v", c.EmergencyDescentRate))
	}
	for _, r := range c.ResolutionPriority {
		if r == ResolutionNone || r == ResolutionSearch {
			errs = append(errs, fmt.Errorf("resolution_priority: %s cannot be ranked", r))
		}
	}
	if slices.Contains(c.ConflictPhases, PhaseLanding) || slices.Contains(c.ConflictPhases, PhaseEmergencyDescent) {
		errs = append(errs, errors.New("conflict_phases: conflict management cannot run during landing or emergency descent"))
	}
	if _, err := language.Parse(c.StatusLocale); err != nil {
		errs = append(errs, fmt.Errorf("status_locale: %w", err))
	}
	return errors.Join(errs...)
}
