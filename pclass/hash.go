package pclass

// Hash is the 31-bit name hash used to identify types and properties on
// the wire. It is stored and transmitted as an unsigned 32-bit value but
// the calculation below runs in 32-bit signed arithmetic; the exact bit
// patterns are part of the wire format.
type Hash = uint32

// TypeHash computes the wire-format hash of a type name.
//
// r, a and b are signed 32-bit accumulators, and the result is made
// non-negative at the end rather than masked, which matters when
// r == math.MinInt32.
func TypeHash(name string) Hash {
	var r, a, b int32
	b = 32
	for i := 0; i < len(name); i++ {
		c := int32(name[i]) - 32
		r ^= c << uint(a)
		if a > 24 {
			r ^= c >> uint(b)
			if a >= 27 {
				a -= 32
				b += 32
			}
		}
		a += 5
		b -= 5
	}
	if r < 0 {
		r = -r
	}
	return uint32(r)
}

// PropertyHash computes the wire-format hash of a property name. This is a
// djb2-family hash seeded with 0x1505, masked to 31 bits.
func PropertyHash(name string) Hash {
	r := uint32(0x1505)
	for i := 0; i < len(name); i++ {
		r = 0x21*r + uint32(name[i])
	}
	return r & 0x7FFFFFFF
}

// FullHash is property_hash(name) + type_hash(type.name), wrapped to 32
// bits; it is the key a self-describing file-mode stream uses to recover
// a property positionally regardless of declaration order.
func FullHash(propertyName string, typeHash Hash) Hash {
	return PropertyHash(propertyName) + typeHash
}
