package humanoid

import "time"

// pidController is the per-joint feedback primitive. One instance exists per
// configured joint for the life of the controller; it is only ever touched
// from the control loop (or while the loops are stopped), so it carries no
// lock of its own.
type pidController struct {
	gains     PIDGains
	integral  float64
	lastError float64
	lastTime  time.Time
}

func newPIDController(gains PIDGains) *pidController {
	return &pidController{
		gains:    gains,
		lastTime: time.Now(),
	}
}

// Update advances the controller by one tick and returns the control effort.
func (p *pidController) Update(setpoint, measurement float64) float64 {
	return p.updateAt(setpoint, measurement, time.Now())
}

// updateAt is Update with an explicit clock, so tests control dt. A
// non-positive dt (first tick after a clock hiccup, or a caller passing a
// stale timestamp) produces a zero effort and leaves all state untouched.
func (p *pidController) updateAt(setpoint, measurement float64, now time.Time) float64 {
	dt := now.Sub(p.lastTime).Seconds()
	if dt <= 0 {
		return 0
	}

	err := setpoint - measurement

	proportional := p.gains.Kp * err

	p.integral += err * dt
	p.integral = clamp(p.integral, -p.gains.MaxIntegral, p.gains.MaxIntegral)
	integral := p.gains.Ki * p.integral

	derivative := p.gains.Kd * (err - p.lastError) / dt

	output := clamp(proportional+integral+derivative, -p.gains.MaxOutput, p.gains.MaxOutput)

	p.lastError = err
	p.lastTime = now
	return output
}

// Reset zeroes the accumulator and error history and re-stamps the clock.
// Must be called before a controller resumes after being idle; otherwise the
// next dt spans the whole idle period and the derivative term spikes.
func (p *pidController) Reset() {
	p.resetAt(time.Now())
}

func (p *pidController) resetAt(now time.Time) {
	p.integral = 0
	p.lastError = 0
	p.lastTime = now
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
