// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package frame

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/grailbio/evslice/coltype"
	"github.com/spaolacci/murmur3"
)

// A Hasher hashes the rows of frames into a provided vector of
// 32-bit sums. The sums are used to partition data in shuffle
// operations, and are thus stable across processes.
type Hasher interface {
	// HashFrame computes hash sums for each row of the frame f,
	// depositing them into the vector sum. HashFrame hashes
	// min(f.Len(), len(sum)) rows.
	HashFrame(f Frame, sum []uint32)
}

// CanHash tells whether the provided type can be hashed by the
// hashers returned from NewHasher.
func CanHash(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// NewHasher returns a Hasher that hashes the first column of frames
// of the provided type. NewHasher panics if the column type cannot
// be hashed.
func NewHasher(types coltype.Type) Hasher {
	typ := types.Out(0)
	if !CanHash(typ) {
		panic("frame: cannot hash type " + typ.String())
	}
	return hasher{typ.Kind()}
}

type hasher struct{ kind reflect.Kind }

func (h hasher) HashFrame(f Frame, sum []uint32) {
	n := f.Len()
	if len(sum) < n {
		n = len(sum)
	}
	col := f[0]
	var buf [8]byte
	for i := 0; i < n; i++ {
		v := col.Index(i)
		switch h.kind {
		case reflect.String:
			sum[i] = murmur3.Sum32WithSeed([]byte(v.String()), hashSeed)
		case reflect.Bool:
			if v.Bool() {
				buf[0] = 1
			} else {
				buf[0] = 0
			}
			sum[i] = murmur3.Sum32WithSeed(buf[:1], hashSeed)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			binary.LittleEndian.PutUint64(buf[:], uint64(v.Int()))
			sum[i] = murmur3.Sum32WithSeed(buf[:], hashSeed)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			binary.LittleEndian.PutUint64(buf[:], v.Uint())
			sum[i] = murmur3.Sum32WithSeed(buf[:], hashSeed)
		case reflect.Float32:
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(float32(v.Float())))
			sum[i] = murmur3.Sum32WithSeed(buf[:4], hashSeed)
		case reflect.Float64:
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Float()))
			sum[i] = murmur3.Sum32WithSeed(buf[:], hashSeed)
		}
	}
}

// hashSeed is fixed so that partition assignments agree across
// machines.
const hashSeed = 0x9acb0442
