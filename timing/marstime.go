// Package timing defines the two calendars of the simulation, the units they
// are measured in, and the time ratio that couples them to real time.
package timing

import (
	"fmt"
	"math"
)

// Calendar constants of the Martian clock.
const (
	MillisolsPerSol    = 1000
	SecondsPerMillisol = 88.775244
	SolsPerOrbit       = 668
	MonthsPerOrbit     = 24
)

var monthNames = [MonthsPerOrbit]string{
	"Adir", "Bora", "Coan", "Deti", "Edal", "Flo",
	"Geor", "Heliba", "Idanon", "Jowani", "Kireal", "Larno",
	"Medior", "Neturima", "Ozulikan", "Pasurabi", "Rudiakel", "Safundo",
	"Tiunor", "Ulasja", "Vadeun", "Wakumi", "Xetual", "Zungo",
}

// Millisols is a span of simulated time.
type Millisols float64

// MarsTime is an immutable point on the primary simulation calendar. It counts
// whole millisols since the calendar epoch and keeps the fraction of the
// current millisol separately so long runs do not lose precision.
//
// The zero value is the epoch, orbit 0, month 1, sol 1, millisol 0.
type MarsTime struct {
	msol int64
	frac float64
}

// NewMarsTime creates a MarsTime that is the given number of millisols after
// the epoch.
func NewMarsTime(totalMillisols float64) MarsTime {
	whole := math.Floor(totalMillisols)

	return MarsTime{
		msol: int64(whole),
		frac: totalMillisols - whole,
	}
}

// NewMarsDate creates a MarsTime from calendar fields. The month and the sol
// are 1-based.
func NewMarsDate(orbit, month, sol int, millisol float64) (MarsTime, error) {
	if orbit < 0 {
		return MarsTime{}, fmt.Errorf("timing: orbit %d is negative", orbit)
	}

	if month < 1 || month > MonthsPerOrbit {
		return MarsTime{}, fmt.Errorf("timing: month %d out of range", month)
	}

	if sol < 1 || sol > solsInMonth(month) {
		return MarsTime{}, fmt.Errorf(
			"timing: sol %d out of range for month %d", sol, month)
	}

	if millisol < 0 || millisol >= MillisolsPerSol {
		return MarsTime{}, fmt.Errorf(
			"timing: millisol %.3f out of range", millisol)
	}

	sols := int64(orbit)*SolsPerOrbit + int64(solsBeforeMonth(month)) +
		int64(sol-1)

	return NewMarsTime(float64(sols*MillisolsPerSol) + millisol), nil
}

// Add returns the time that is d after t. A negative d moves backwards.
func (t MarsTime) Add(d Millisols) MarsTime {
	total := t.frac + float64(d)
	whole := math.Floor(total)

	return MarsTime{
		msol: t.msol + int64(whole),
		frac: total - whole,
	}
}

// Sub returns the span t-u.
func (t MarsTime) Sub(u MarsTime) Millisols {
	return Millisols(float64(t.msol-u.msol) + (t.frac - u.frac))
}

// Compare returns -1 if t is before u, +1 if t is after u, and 0 otherwise.
func (t MarsTime) Compare(u MarsTime) int {
	switch {
	case t.msol < u.msol:
		return -1
	case t.msol > u.msol:
		return 1
	case t.frac < u.frac:
		return -1
	case t.frac > u.frac:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly before u.
func (t MarsTime) Before(u MarsTime) bool { return t.Compare(u) < 0 }

// After reports whether t is strictly after u.
func (t MarsTime) After(u MarsTime) bool { return t.Compare(u) > 0 }

// Equal reports whether t and u are the same instant.
func (t MarsTime) Equal(u MarsTime) bool { return t.Compare(u) == 0 }

// TotalMillisols returns the millisols elapsed since the epoch.
func (t MarsTime) TotalMillisols() float64 {
	return float64(t.msol) + t.frac
}

// WholeMillisols returns the whole millisols elapsed since the epoch.
func (t MarsTime) WholeMillisols() int64 {
	return t.msol
}

// Fraction returns the elapsed fraction of the current millisol.
func (t MarsTime) Fraction() float64 {
	return t.frac
}

// Millisol returns the time of the sol, in [0, 1000).
func (t MarsTime) Millisol() float64 {
	return float64(floorMod(t.msol, MillisolsPerSol)) + t.frac
}

// MillisolInt returns the integer part of Millisol.
func (t MarsTime) MillisolInt() int {
	return int(floorMod(t.msol, MillisolsPerSol))
}

// SolsSinceEpoch returns the whole sols elapsed since the epoch.
func (t MarsTime) SolsSinceEpoch() int64 {
	return floorDiv(t.msol, MillisolsPerSol)
}

// MissionSol returns the 1-based sol count relative to the given start.
func (t MarsTime) MissionSol(start MarsTime) int {
	return int(t.SolsSinceEpoch()-start.SolsSinceEpoch()) + 1
}

// Orbit returns the orbit number.
func (t MarsTime) Orbit() int {
	return int(floorDiv(t.SolsSinceEpoch(), SolsPerOrbit))
}

// Month returns the 1-based month of the orbit.
func (t MarsTime) Month() int {
	month, _ := t.monthAndSol()
	return month
}

// MonthName returns the name of the month of the orbit.
func (t MarsTime) MonthName() string {
	return monthNames[t.Month()-1]
}

// SolOfMonth returns the 1-based sol of the month.
func (t MarsTime) SolOfMonth() int {
	_, sol := t.monthAndSol()
	return sol
}

func (t MarsTime) monthAndSol() (month, sol int) {
	solOfOrbit := int(floorMod(t.SolsSinceEpoch(), SolsPerOrbit))

	for month = 1; month < MonthsPerOrbit; month++ {
		n := solsInMonth(month)
		if solOfOrbit < n {
			break
		}
		solOfOrbit -= n
	}

	return month, solOfOrbit + 1
}

// String formats the time as orbit-month-sol:millisol, for example
// 0217-03-11:500.000.
func (t MarsTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d:%07.3f",
		t.Orbit(), t.Month(), t.SolOfMonth(), t.Millisol())
}

// DateString formats only the calendar date, with the month name.
func (t MarsTime) DateString() string {
	return fmt.Sprintf("%02d-%s-%02d", t.Orbit(), t.MonthName(), t.SolOfMonth())
}

// ParseMarsTime parses the format produced by MarsTime.String.
func ParseMarsTime(s string) (MarsTime, error) {
	var (
		orbit, month, sol int
		millisol          float64
	)

	n, err := fmt.Sscanf(s, "%d-%d-%d:%f", &orbit, &month, &sol, &millisol)
	if err != nil || n != 4 {
		return MarsTime{}, fmt.Errorf("timing: cannot parse mars time %q", s)
	}

	t, err := NewMarsDate(orbit, month, sol, millisol)
	if err != nil {
		return MarsTime{}, fmt.Errorf("timing: parse %q: %w", s, err)
	}

	return t, nil
}

// Every sixth month is one sol short, which keeps an orbit at 668 sols.
func solsInMonth(month int) int {
	if month%6 == 0 {
		return 27
	}

	return 28
}

func solsBeforeMonth(month int) int {
	sols := 0
	for m := 1; m < month; m++ {
		sols += solsInMonth(m)
	}

	return sols
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}

	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}
