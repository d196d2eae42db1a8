package regpolicy

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
)

func newZeros(n int) blas32.Vector {
	return blas32.Vector{
		N:    n,
		Inc:  1,
		Data: make([]float32, n),
	}
}

func validateVector(name string, vec blas32.Vector) error {
	if vec.Inc < 1 {
		return fmt.Errorf("%w: %s.Incが不正(<1): Inc=%d", ErrInvalidInput, name, vec.Inc)
	}
	if vec.N < 1 || (vec.N-1)*vec.Inc+1 > len(vec.Data) {
		return fmt.Errorf("%w: %s.Nが不正: N=%d Inc=%d len(Data)=%d", ErrInvalidInput, name, vec.N, vec.Inc, len(vec.Data))
	}
	return nil
}

// gather returns a contiguous copy of vec.
func gather(vec blas32.Vector) blas32.Vector {
	y := newZeros(vec.N)
	blas32.Copy(vec, y)
	return y
}

// SolveVector は gonum のベクトル (Inc >= 1) を受け取り、Inc == 1 の新しいベクトルを返します。
func SolveVector(prior, values blas32.Vector, lambda float32) (blas32.Vector, error) {
	if err := validateVector("prior", prior); err != nil {
		return blas32.Vector{}, err
	}
	if err := validateVector("values", values); err != nil {
		return blas32.Vector{}, err
	}
	if prior.N != values.N {
		return blas32.Vector{}, fmt.Errorf("%w: prior.N=%d != values.N=%d", ErrInvalidInput, prior.N, values.N)
	}

	p := gather(prior)
	q := gather(values)
	pi, err := Solve(p.Data, q.Data, lambda)
	if err != nil {
		return blas32.Vector{}, err
	}
	return blas32.Vector{N: len(pi), Inc: 1, Data: pi}, nil
}

// Residual は |sum(pi) - 1| を返します。
func Residual(pi blas32.Vector) float32 {
	ones := newZeros(pi.N)
	for i := range ones.Data {
		ones.Data[i] = 1.0
	}
	r := blas32.Dot(pi, ones) - 1.0
	if r < 0 {
		return -r
	}
	return r
}
