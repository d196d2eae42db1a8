package regpolicy

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Lambda は c * sqrt(N) / (|A| + N) を返します。
// 探索回数 N が増えるほど事前方策への正則化は弱まります。
func Lambda(c float32, sumVisits, numActions int) (float32, error) {
	if c <= 0 || math32.IsNaN(c) || math32.IsInf(c, 0) {
		return 0.0, fmt.Errorf("%w: cが不正(<=0/NaN/Inf): c=%.6g", ErrInvalidInput, c)
	}
	if sumVisits < 0 {
		return 0.0, fmt.Errorf("%w: sumVisitsが不正(<0): sumVisits=%d", ErrInvalidInput, sumVisits)
	}
	if numActions <= 0 {
		return 0.0, fmt.Errorf("%w: numActionsが不正(<=0): numActions=%d", ErrInvalidInput, numActions)
	}
	n := float32(sumVisits)
	return c * math32.Sqrt(n) / (float32(numActions) + n), nil
}
