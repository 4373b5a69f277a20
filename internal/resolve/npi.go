package resolve

// npiPrefix is the ISO 7812 issuer prefix assigned to health industry
// identifiers. The NPI check digit is computed over this prefix plus the
// first nine digits.
const npiPrefix = "80840"

// NormalizeNPI strips non-digits and checksum-validates the result. It
// returns the canonical 10-digit identifier and true when valid, or
// ("", false) otherwise. Total: malformed input is never an error.
func NormalizeNPI(s string) (string, bool) {
	d := DigitsOnly(s)
	if len(d) != 10 || !luhnValid(npiPrefix+d[:9], d[9]) {
		return "", false
	}
	return d, true
}

// ValidNPI reports whether s is a structurally valid 10-digit NPI.
func ValidNPI(s string) bool {
	_, ok := NormalizeNPI(s)
	return ok
}

// luhnValid runs the mod-10 double-and-reduce checksum over base and
// compares the expected check digit against check.
func luhnValid(base string, check byte) bool {
	sum := 0
	for i := 0; i < len(base); i++ {
		d := int(base[len(base)-1-i] - '0')
		if i%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	expected := (10 - sum%10) % 10
	return expected == int(check-'0')
}
