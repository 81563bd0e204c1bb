// Package fec implements the systematic block code of the transport: k
// original chunks are expanded to n = ceil(k*r) coded chunks such that any k
// of the n suffice to reconstruct the original data exactly.
package fec

import (
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/reedsolomon"
)

var (
	ErrInsufficientData = errors.New("Not enough chunks to reconstruct the block.")
	ErrBadRatio         = errors.New("Redundancy ratio must be greater than 1.0.")
	ErrBadBlock         = errors.New("Chunk sizes are inconsistent within the block.")
	ErrEmptyBlock       = errors.New("Block has no chunks.")
	ErrBlockTooLarge    = errors.New("Coded block exceeds 256 chunks.")
)

const DEFAULT_REDUNDANCY_RATIO = 1.2

// TotalCount returns the coded block size n for k original chunks at
// redundancy ratio r.
func TotalCount(k int, r float64) int {
	return int(math.Ceil(float64(k) * r))
}

// Encoder produces coded blocks at a fixed redundancy ratio.
type Encoder struct {
	Ratio float64
}

func NewEncoder(ratio float64) (*Encoder, error) {
	// r > 1 guarantees at least one parity chunk for any k.
	if ratio <= 1.0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return nil, ErrBadRatio
	}
	return &Encoder{Ratio: ratio}, nil
}

// Encode expands the segmented chunks of one message into n coded shards.
// All shards come back with the length of the first chunk; the tail data
// chunk is zero-padded, receivers trim it with the framed message length.
// Shards [0,k) are the original data, [k,n) Reed-Solomon parity.
func (e *Encoder) Encode(chunks [][]byte) ([][]byte, error) {
	k := len(chunks)
	if k == 0 {
		return nil, ErrEmptyBlock
	}
	shardSize := len(chunks[0])
	if shardSize == 0 {
		return nil, ErrBadBlock
	}
	for i, chunk := range chunks {
		if i < k-1 && len(chunk) != shardSize {
			return nil, ErrBadBlock
		}
		if len(chunk) > shardSize {
			return nil, ErrBadBlock
		}
	}

	n := TotalCount(k, e.Ratio)
	if n > 256 {
		return nil, ErrBlockTooLarge
	}
	shards := make([][]byte, n)
	for i, chunk := range chunks {
		shard := make([]byte, shardSize)
		copy(shard, chunk)
		shards[i] = shard
	}
	for i := k; i < n; i++ {
		shards[i] = make([]byte, shardSize)
	}

	enc, err := reedsolomon.New(k, n-k)
	if err != nil {
		return nil, fmt.Errorf("fec encoder setup: %w", err)
	}
	if err = enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("fec encode: %w", err)
	}
	return shards, nil
}

// Decode reconstructs the original message bytes from a partially received
// block. shards must have the full block length n, with nil in the place of
// every missing shard. Fails with ErrInsufficientData while fewer than
// dataShards distinct shards are present; callers treat that as "not yet
// decodable", not as corruption.
func Decode(shards [][]byte, dataShards int, msgLen int) ([]byte, error) {
	n := len(shards)
	if dataShards <= 0 || n < dataShards {
		return nil, ErrBadBlock
	}

	present, shardSize := 0, 0
	for _, shard := range shards {
		if shard == nil {
			continue
		}
		present++
		if shardSize == 0 {
			shardSize = len(shard)
		} else if len(shard) != shardSize {
			return nil, ErrBadBlock
		}
	}
	if present < dataShards {
		return nil, ErrInsufficientData
	}
	if msgLen <= 0 || msgLen > dataShards*shardSize {
		return nil, ErrBadBlock
	}

	dataComplete := true
	for i := 0; i < dataShards; i++ {
		if shards[i] == nil {
			dataComplete = false
			break
		}
	}
	if !dataComplete {
		enc, err := reedsolomon.New(dataShards, n-dataShards)
		if err != nil {
			return nil, fmt.Errorf("fec decoder setup: %w", err)
		}
		if err = enc.ReconstructData(shards); err != nil {
			return nil, fmt.Errorf("fec reconstruct: %w", err)
		}
	}

	raw := make([]byte, 0, dataShards*shardSize)
	for i := 0; i < dataShards; i++ {
		raw = append(raw, shards[i]...)
	}
	return raw[:msgLen], nil
}
