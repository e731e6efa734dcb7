package kernels

import "github.com/sbl8/edgenet/core"

// MacsOnRange returns sum + in[i*inInc]*w[i*wInc] summed over i in [0, n).
// Products are formed in the accumulator type. The loop is unrolled in
// groups of four, then a pair, then a single element.
func MacsOnRange[In, W core.Element, S core.Accumulator](n int, in []In, w []W, sum S, inInc, wInc int) S {
	switch n {
	case 0:
		return sum
	case 1:
		return sum + S(in[0])*S(w[0])
	}

	i, j := 0, 0
	for ; n >= 4; n -= 4 {
		sum += S(in[i]) * S(w[j])
		sum += S(in[i+inInc]) * S(w[j+wInc])
		sum += S(in[i+2*inInc]) * S(w[j+2*wInc])
		sum += S(in[i+3*inInc]) * S(w[j+3*wInc])
		i += 4 * inInc
		j += 4 * wInc
	}
	if n >= 2 {
		sum += S(in[i]) * S(w[j])
		sum += S(in[i+inInc]) * S(w[j+wInc])
		i += 2 * inInc
		j += 2 * wInc
		n -= 2
	}
	if n == 1 {
		sum += S(in[i]) * S(w[j])
	}
	return sum
}
