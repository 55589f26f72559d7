package kinematics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"swervebase/geometry"
)

// zeroVelocity is the module vector length below which no heading is computed.
const zeroVelocity = 1e-9

// SwerveKinematics converts between chassis speeds and module states for a fixed set of module
// mounting offsets. It remembers the last heading of every module so that a module that is asked
// to stand still keeps pointing where it was.
type SwerveKinematics struct {
	modules  []r2.Point
	forward  *mat.Dense // 3 x 2N least-squares inverse of the module velocity matrix
	headings []float64
}

// New builds the kinematics for modules mounted at the given offsets from the robot center
// (X forward, Y left, meters). At least two distinct offsets are required.
func New(modules ...r2.Point) (*SwerveKinematics, error) {
	if len(modules) < 2 {
		return nil, errors.Errorf("swerve kinematics needs at least 2 modules, got %d", len(modules))
	}

	n := len(modules)
	inverse := mat.NewDense(2*n, 3, nil)
	for i, m := range modules {
		inverse.SetRow(2*i, []float64{1, 0, -m.Y})
		inverse.SetRow(2*i+1, []float64{0, 1, m.X})
	}

	var normal mat.Dense
	normal.Mul(inverse.T(), inverse)
	var normalInv mat.Dense
	if err := normalInv.Inverse(&normal); err != nil {
		return nil, errors.Wrap(err, "module offsets are degenerate")
	}
	forward := mat.NewDense(3, 2*n, nil)
	forward.Mul(&normalInv, inverse.T())

	offsets := make([]r2.Point, n)
	copy(offsets, modules)
	return &SwerveKinematics{
		modules:  offsets,
		forward:  forward,
		headings: make([]float64, n),
	}, nil
}

// NumModules returns the number of modules.
func (k *SwerveKinematics) NumModules() int {
	return len(k.modules)
}

// Modules returns a copy of the module offsets.
func (k *SwerveKinematics) Modules() []r2.Point {
	out := make([]r2.Point, len(k.modules))
	copy(out, k.modules)
	return out
}

// ResetHeadings sets the headings held for modules with a zero velocity vector.
func (k *SwerveKinematics) ResetHeadings(angles ...float64) {
	k.checkCount(len(angles))
	copy(k.headings, angles)
}

// ToModuleStates returns the state of every module for the given chassis speeds, in the order the
// modules were given to New. Each module's velocity is the chassis translation plus omega crossed
// with the module offset. A module whose velocity vector is zero keeps its previous heading.
func (k *SwerveKinematics) ToModuleStates(speeds ChassisSpeeds) []ModuleState {
	states := make([]ModuleState, len(k.modules))
	t := speeds.Translation()
	for i, m := range k.modules {
		v := t.Add(m.Ortho().Mul(speeds.Omega))
		speed := v.Norm()
		if speed < zeroVelocity {
			states[i] = ModuleState{Speed: 0, Angle: k.headings[i]}
			continue
		}
		angle := math.Atan2(v.Y, v.X)
		k.headings[i] = angle
		states[i] = ModuleState{Speed: speed, Angle: angle}
	}
	return states
}

// ToChassisSpeeds recovers the chassis speeds that best explain the measured module states, in the
// least-squares sense.
func (k *SwerveKinematics) ToChassisSpeeds(states ...ModuleState) ChassisSpeeds {
	k.checkCount(len(states))
	b := mat.NewVecDense(2*len(states), nil)
	for i, s := range states {
		v := s.Vector()
		b.SetVec(2*i, v.X)
		b.SetVec(2*i+1, v.Y)
	}
	var out mat.VecDense
	out.MulVec(k.forward, b)
	return ChassisSpeeds{VX: out.AtVec(0), VY: out.AtVec(1), Omega: out.AtVec(2)}
}

// ToTwist converts per-module displacements over one interval into the chassis twist for that
// interval. Each delta's Distance is the distance driven during the interval and its Angle the
// wheel heading it was driven at.
func (k *SwerveKinematics) ToTwist(deltas ...ModulePosition) geometry.Twist {
	states := make([]ModuleState, len(deltas))
	for i, d := range deltas {
		states[i] = ModuleState{Speed: d.Distance, Angle: d.Angle}
	}
	s := k.ToChassisSpeeds(states...)
	return geometry.Twist{DX: s.VX, DY: s.VY, DTheta: s.Omega}
}

func (k *SwerveKinematics) checkCount(n int) {
	if n != len(k.modules) {
		panic(fmt.Sprintf("swerve kinematics configured for %d modules, got %d", len(k.modules), n))
	}
}
