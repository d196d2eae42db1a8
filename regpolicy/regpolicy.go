// Package regpolicy solves the regularized target policy used by MCTS as
// regularized policy optimization.
//
//	pi[i] = lambda * p[i] / (alpha - q[i]),  sum(pi) = 1
//
// The dual variable alpha is found by bisection.
//
// Package regpolicy は正則化付き方策最適化としての MCTS で用いる目標方策を求めます。
// 双対変数 alpha は二分法で探索します。
//
// https://arxiv.org/abs/2007.12509
package regpolicy

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

const (
	DefaultEpsilon       = 1e-3
	DefaultMaxIterations = 32
)

var (
	ErrConvergence  = errors.New("regpolicy: alpha search did not converge")
	ErrInvalidInput = errors.New("regpolicy: invalid input")
)

// Solver holds the tolerance and the iteration cap of the bisection.
// It has no other state, so a single value can be shared between goroutines.
type Solver[X constraints.Float] struct {
	Epsilon       X
	MaxIterations int
}

func NewSolver[X constraints.Float]() Solver[X] {
	return Solver[X]{Epsilon: DefaultEpsilon, MaxIterations: DefaultMaxIterations}
}

var defaultSolver = NewSolver[float32]()

// Solve は float32 の既定ソルバーで目標方策を求めます。
func Solve(prior, values []float32, lambda float32) ([]float32, error) {
	return defaultSolver.Solve(prior, values, lambda)
}

func isFinite[X constraints.Float](x X) bool {
	f := float64(x)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (s Solver[X]) validate(prior, values []X, lambda X) error {
	if s.Epsilon <= 0 || !isFinite(s.Epsilon) {
		return fmt.Errorf("%w: Epsilonが不正(<=0/NaN/Inf): Epsilon=%.6g", ErrInvalidInput, float64(s.Epsilon))
	}
	if s.MaxIterations <= 0 {
		return fmt.Errorf("%w: MaxIterationsが不正(<=0): MaxIterations=%d", ErrInvalidInput, s.MaxIterations)
	}

	n := len(prior)
	if n == 0 {
		return fmt.Errorf("%w: priorが空", ErrInvalidInput)
	}
	if n != len(values) {
		return fmt.Errorf("%w: len(prior)=%d != len(values)=%d", ErrInvalidInput, n, len(values))
	}
	if lambda <= 0 || !isFinite(lambda) {
		return fmt.Errorf("%w: lambdaが不正(<=0/NaN/Inf): lambda=%.6g", ErrInvalidInput, float64(lambda))
	}

	positive := false
	for i, p := range prior {
		if p < 0 || !isFinite(p) {
			return fmt.Errorf("%w: prior[%d]が不正(負/NaN/Inf): p=%.6g", ErrInvalidInput, i, float64(p))
		}
		if p > 0 {
			positive = true
		}
	}
	if !positive {
		return fmt.Errorf("%w: priorが全て0", ErrInvalidInput)
	}

	for i, q := range values {
		if !isFinite(q) {
			return fmt.Errorf("%w: values[%d]が不正(NaN/Inf): q=%.6g", ErrInvalidInput, i, float64(q))
		}
	}
	return nil
}

// Bracket returns the interval that contains alpha.
// At alphaMin the term of the index attaining the max is 1, so the sum is at least 1.
// At alphaMax each term is at most p[i], so the sum is at most sum(p).
// Indices with p[i] == 0 never contribute to the sum and are left out.
func Bracket[X constraints.Float](prior, values []X, lambda X) (X, X) {
	alphaMin := X(math.Inf(-1))
	alphaMax := X(math.Inf(-1))
	for i := range prior {
		if prior[i] == 0 {
			continue
		}
		alphaMin = max(alphaMin, values[i]+lambda*prior[i])
		alphaMax = max(alphaMax, values[i]+lambda)
	}
	return alphaMin, alphaMax
}

func policySum[X constraints.Float](prior, values []X, lambda, alpha X) X {
	var sum X
	for i, p := range prior {
		// p=0 の項は alpha == q[i] でも 0 とする (0/0 回避)
		if p == 0 {
			continue
		}
		sum += lambda * p / (alpha - values[i])
	}
	return sum
}

// Solve returns pi for prior p, values q and coefficient lambda.
// p must be non-negative and roughly normalized, and lambda positive; the sum is then
// monotonically decreasing in alpha over the bracket. Inputs outside that contract
// either fail validation with ErrInvalidInput or end with ErrConvergence: an inverted
// bracket, a non-finite sum, a stalled sum outside Epsilon, or exhausted iterations.
// pi is only returned when the residual |sum - 1| of the last iteration is within Epsilon.
func (s Solver[X]) Solve(prior, values []X, lambda X) ([]X, error) {
	if err := s.validate(prior, values, lambda); err != nil {
		return nil, err
	}

	alphaMin, alphaMax := Bracket(prior, values, lambda)
	// sum(p) > 1 のとき区間が反転し、二分法は根から離れていく
	if alphaMin > alphaMax {
		return nil, fmt.Errorf("%w: 区間が反転(alphaMin > alphaMax): alphaMin=%.6g alphaMax=%.6g", ErrConvergence, float64(alphaMin), float64(alphaMax))
	}
	alpha := (alphaMin + alphaMax) / 2
	lastSum := X(math.Inf(1))

	for i := 0; i < s.MaxIterations; i++ {
		sum := policySum(prior, values, lambda, alpha)
		if !isFinite(sum) {
			return nil, fmt.Errorf("%w: sumが発散(NaN/Inf): alpha=%.6g iterations=%d", ErrConvergence, float64(alpha), i+1)
		}

		e := sum - 1
		if e < 0 {
			e = -e
		}
		if e <= s.Epsilon {
			return policy(prior, values, lambda, alpha), nil
		}
		// sum が前回と完全一致: alpha がこれ以上動かない。ここで e > Epsilon なので収束失敗
		if sum == lastSum {
			return nil, fmt.Errorf("%w: sumが停滞(stagnation): alpha=%.6g sum=%.6g iterations=%d", ErrConvergence, float64(alpha), float64(sum), i+1)
		}
		lastSum = sum

		if sum > 1 {
			alphaMin = alpha
			alpha = (alpha + alphaMax) / 2
		} else {
			alphaMax = alpha
			alpha = (alpha + alphaMin) / 2
		}
	}
	return nil, fmt.Errorf("%w: iterations=%d alpha=%.6g sum=%.6g", ErrConvergence, s.MaxIterations, float64(alpha), float64(lastSum))
}

func policy[X constraints.Float](prior, values []X, lambda, alpha X) []X {
	pi := make([]X, len(prior))
	for i, p := range prior {
		if p == 0 {
			continue
		}
		pi[i] = lambda * p / (alpha - values[i])
	}
	return pi
}
