package fec

import (
	"math"
)

// Default channel parameter of the exponential loss model. A tunable
// configuration constant, not a law of the channel.
const DEFAULT_LOSS_LAMBDA = 0.01

// DeliveryFailureProbability estimates the per-packet delivery failure
// probability for a framed length of l bytes under the exponential loss
// model: Pe(l) = 1 - exp(-lambda*l). Pure; used for offline sizing and
// tuning, never consulted per packet at runtime.
func DeliveryFailureProbability(length int, lambda float64) float64 {
	if length <= 0 {
		return 0
	}
	return 1 - math.Exp(-lambda*float64(length))
}

// DeliverySuccessProbability is the complement of the loss model.
func DeliverySuccessProbability(length int, lambda float64) float64 {
	return 1 - DeliveryFailureProbability(length, lambda)
}

// BlockSuccessProbability returns the probability that a block of n coded
// chunks with threshold k reconstructs, given independent per-chunk delivery
// probability p:
//
//	P = sum_{i=k}^{n} C(n,i) p^i (1-p)^(n-i)
//
// Exposed for tuning and tests, not used on the data path.
func BlockSuccessProbability(n, k int, p float64) float64 {
	if k <= 0 {
		return 1
	}
	if n < k {
		return 0
	}
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}

	sum := 0.0
	for i := k; i <= n; i++ {
		sum += math.Exp(lnChoose(n, i) + float64(i)*math.Log(p) + float64(n-i)*math.Log(1-p))
	}
	if sum > 1 {
		sum = 1
	}
	return sum
}

func lnChoose(n, i int) float64 {
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(i + 1))
	c, _ := math.Lgamma(float64(n - i + 1))
	return a - b - c
}
