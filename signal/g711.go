package signal

var (
	aLawSegEnd  = [8]int{0x1f, 0x3f, 0x7f, 0xff, 0x1ff, 0x3ff, 0x7ff, 0xfff}
	muLawSegEnd = [8]int{0x3f, 0x7f, 0xff, 0x1ff, 0x3ff, 0x7ff, 0xfff, 0x1fff}
)

const (
	muLawBias = 0x84
	muLawClip = 8159
)

func segment(v int, ends *[8]int) int {
	for i, end := range ends {
		if v <= end {
			return i
		}
	}
	return len(ends)
}

// ALawEncode compresses 16-bit linear sample to A-law.
func ALawEncode(pcm int16) byte {
	v := int(pcm) >> 3
	mask := byte(0xd5)
	if v < 0 {
		mask = 0x55
		v = -v - 1
	}
	seg := segment(v, &aLawSegEnd)
	if seg >= 8 {
		return 0x7f ^ mask
	}
	a := byte(seg << 4)
	if seg < 2 {
		a |= byte(v>>1) & 0x0f
	} else {
		a |= byte(v>>seg) & 0x0f
	}
	return a ^ mask
}

// ALawDecode expands A-law sample to 16-bit linear.
func ALawDecode(a byte) int16 {
	a ^= 0x55
	t := int(a&0x0f) << 4
	switch seg := int(a&0x70) >> 4; seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

// MuLawEncode compresses 16-bit linear sample to mu-law.
func MuLawEncode(pcm int16) byte {
	v := int(pcm) >> 2
	mask := byte(0xff)
	if v < 0 {
		v = -v
		mask = 0x7f
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias >> 2
	seg := segment(v, &muLawSegEnd)
	if seg >= 8 {
		return 0x7f ^ mask
	}
	u := byte(seg<<4) | byte(v>>(seg+1))&0x0f
	return u ^ mask
}

// MuLawDecode expands mu-law sample to 16-bit linear.
func MuLawDecode(u byte) int16 {
	u = ^u
	t := (int(u&0x0f) << 3) + muLawBias
	t <<= int(u&0x70) >> 4
	if u&0x80 != 0 {
		return int16(muLawBias - t)
	}
	return int16(t - muLawBias)
}
