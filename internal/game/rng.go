package game

// Stream is the seeded pseudo-random source shared by the board and the
// engine. Given the same seed it yields the same sequence of floats in [0,1),
// so a match is fully determined by (layout, characters, seed, inputs).
//
// The generator is Mulberry32 so that streams line up with the browser
// clients, which compute the same match locally from the same seed.
type Stream struct {
	state uint32
	draws uint64
}

// NewStream creates a stream from an integer seed. Only the low 32 bits
// of the seed are significant.
func NewStream(seed int64) *Stream {
	return &Stream{state: uint32(seed)}
}

// Next returns the next float in [0,1).
func (s *Stream) Next() float64 {
	s.state += 0x6D2B79F5
	s.draws++

	t := s.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296.0
}

// Range returns an integer in [min,max).
func (s *Stream) Range(min, max int) int {
	return int(s.Next()*float64(max-min)) + min
}

// Draws reports how many values have been consumed. Used to check that two
// replicas stayed in lockstep.
func (s *Stream) Draws() uint64 {
	return s.draws
}
