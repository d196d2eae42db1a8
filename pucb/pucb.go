// Package pucb keeps per-action search statistics and turns them into the
// regularized target policy of MCTS as regularized policy optimization.
// Input validation for a node is centralized in Selector.Problem.
//
// Package pucb は行動ごとの探索統計を保持し、正則化付き方策最適化の目標方策に変換します。
// ノードの入力バリデーションは Selector.Problem に集約されています。
//
// https://arxiv.org/abs/2007.12509
// https://github.com/liuanji/WU-UCT
package pucb

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/chewxy/math32"
	"github.com/sw965/mctspo/regpolicy"
	"github.com/sw965/omw/mathx"
	"github.com/sw965/omw/mathx/randx"
)

// Calculator holds the statistics of one action at a node: the prior P from the
// policy network, the accumulated backed-up value and the visit counts.
// VirtualValue is the value assumed for each in-flight evaluation.
type Calculator struct {
	P            float32
	w            float32
	visits       int
	o            int
	VirtualValue float32
}

// AddW は葉の評価値を累積価値に加えます。
func (c *Calculator) AddW(v float32) error {
	if mathx.IsNaN(v) || mathx.IsInf(v, 0) {
		return fmt.Errorf("vが不正(NaN/Inf): v=%.6g", v)
	}
	c.w += v
	return nil
}

func (c *Calculator) IncrementVisits() {
	c.visits += 1
}

// O は評価待ち (virtual loss) の数を返します。
func (c *Calculator) O() int {
	return c.o
}

func (c *Calculator) IncrementO() {
	c.o += 1
}

func (c *Calculator) DecrementO() error {
	if c.o == 0 {
		return fmt.Errorf("oが不正(underflow): o=0")
	}
	c.o -= 1
	return nil
}

// Visits counts finished and in-flight evaluations, so a pending action
// already weighs on N when the regularized policy is solved.
func (c *Calculator) Visits() int {
	return c.visits + c.o
}

// W is the accumulated value with VirtualValue charged once per in-flight evaluation.
func (c *Calculator) W() float32 {
	return c.w + (c.VirtualValue * float32(c.o))
}

// Q is the mean value fed to the solver as values[i]; an unvisited action gets 0.
func (c *Calculator) Q() float32 {
	visits := c.Visits()
	if visits == 0 {
		return 0.0
	}
	return c.W() / float32(visits)
}

type Selector[K comparable] map[K]*Calculator

func (s Selector[K]) SumVisits() int {
	sum := 0
	for _, c := range s {
		sum += c.Visits()
	}
	return sum
}

func (s Selector[K]) VisitPercentByKey() map[K]float32 {
	n := len(s)
	if n == 0 {
		return map[K]float32{}
	}

	sum := s.SumVisits()
	m := map[K]float32{}

	if sum == 0 {
		p := 1.0 / float32(n)
		for k := range s {
			m[k] = p
		}
		return m
	}

	for k, c := range s {
		m[k] = float32(c.Visits()) / float32(sum)
	}
	return m
}

// Problem は solver に渡す prior と values を keys の順に並べて返します。
func (s Selector[K]) Problem() ([]K, []float32, []float32, error) {
	n := len(s)
	if n == 0 {
		return nil, nil, nil, fmt.Errorf("Selectorが空")
	}

	keys := make([]K, 0, n)
	prior := make([]float32, 0, n)
	values := make([]float32, 0, n)
	for k, c := range s {
		if c == nil {
			return nil, nil, nil, fmt.Errorf("Calculatorが未初期化(nil)")
		}
		if p := float64(c.P); c.P < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, nil, nil, fmt.Errorf("Pが不正(負/NaN/Inf): P=%.6g", c.P)
		}
		keys = append(keys, k)
		prior = append(prior, c.P)
		values = append(values, c.Q())
	}
	return keys, prior, values, nil
}

// RegularizedPolicy は lambda = c * sqrt(N) / (|A| + N) で目標方策を求めます。
// 事前方策は合計 1 に正規化してから解きます。
// まだ一度も訪問していない (N == 0) ノードでは正規化した事前方策をそのまま返します。
func (s Selector[K]) RegularizedPolicy(c float32, solver regpolicy.Solver[float32]) (map[K]float32, error) {
	keys, prior, values, err := s.Problem()
	if err != nil {
		return nil, err
	}

	sumVisits := s.SumVisits()
	lambda, err := regpolicy.Lambda(c, sumVisits, len(keys))
	if err != nil {
		return nil, err
	}

	pi, err := normalize(prior)
	if err != nil {
		return nil, err
	}
	if sumVisits > 0 {
		pi, err = solver.Solve(pi, values, lambda)
		if err != nil {
			return nil, err
		}
	}

	m := make(map[K]float32, len(keys))
	for i, k := range keys {
		m[k] = pi[i]
	}
	return m, nil
}

func normalize(prior []float32) ([]float32, error) {
	var sum float32
	for _, p := range prior {
		sum += p
	}
	if sum <= 0 {
		return nil, fmt.Errorf("Pの合計が不正(<=0): sum=%.6g", sum)
	}
	y := make([]float32, len(prior))
	for i, p := range prior {
		y[i] = p / sum
	}
	return y, nil
}

const eps float32 = 0.0001

// MaxKeys は pi(a) - n(a) / (1 + N) が最大となるキーを返します。
func (s Selector[K]) MaxKeys(c float32, solver regpolicy.Solver[float32]) ([]K, error) {
	pi, err := s.RegularizedPolicy(c, solver)
	if err != nil {
		return nil, err
	}

	denom := 1.0 + float32(s.SumVisits())
	ks := make([]K, 0, len(s))
	var max float32
	first := true

	for k, calc := range s {
		u := pi[k] - float32(calc.Visits())/denom

		if first {
			max = u
			ks = append(ks, k)
			first = false
			continue
		}

		if u > max+eps {
			max = u
			ks = ks[:0]
			ks = append(ks, k)
			continue
		}

		// 誤差 eps 以内なら同率扱い
		if math32.Abs(u-max) <= eps {
			ks = append(ks, k)
		}
	}
	return ks, nil
}

func (s Selector[K]) Select(c float32, solver regpolicy.Solver[float32], rng *rand.Rand) (K, error) {
	ks, err := s.MaxKeys(c, solver)
	if err != nil {
		var zero K
		return zero, err
	}
	return randx.Choice(ks, rng)
}
