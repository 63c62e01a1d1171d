package model

import (
	"math/bits"
)

// MaxWavelength is the size of the fixed grid. Wavelength indices are 1-based.
const MaxWavelength = 96

const (
	firstFrequencyTHz = 196.10
	channelSpacingTHz = 0.05
)

// WavelengthSet is an ordered set of wavelength indices 1..96.
type WavelengthSet struct {
	bits [2]uint64
}

func NewWavelengthSet(indices ...int) WavelengthSet {
	var s WavelengthSet
	for _, i := range indices {
		s.Add(i)
	}
	return s
}

// FullWavelengthSet has every index of the grid.
func FullWavelengthSet() WavelengthSet {
	var s WavelengthSet
	for i := 1; i <= MaxWavelength; i++ {
		s.Add(i)
	}
	return s
}

// Add ignores indices outside the grid.
func (s *WavelengthSet) Add(i int) {
	if i < 1 || i > MaxWavelength {
		return
	}
	s.bits[(i-1)/64] |= 1 << uint((i-1)%64)
}

func (s WavelengthSet) Contains(i int) bool {
	if i < 1 || i > MaxWavelength {
		return false
	}
	return s.bits[(i-1)/64]&(1<<uint((i-1)%64)) != 0
}

func (s WavelengthSet) Len() int {
	return bits.OnesCount64(s.bits[0]) + bits.OnesCount64(s.bits[1])
}

func (s WavelengthSet) Empty() bool {
	return s.bits[0] == 0 && s.bits[1] == 0
}

// Slice lists the members in ascending order.
func (s WavelengthSet) Slice() []int {
	out := make([]int, 0, s.Len())
	for i := 1; i <= MaxWavelength; i++ {
		if s.Contains(i) {
			out = append(out, i)
		}
	}
	return out
}

// CenterFrequency returns the grid frequency in THz of wavelength index n.
func CenterFrequency(n int) float64 {
	if n < 1 || n > MaxWavelength {
		return 0
	}
	return firstFrequencyTHz - float64(n-1)*channelSpacingTHz
}
