// Package fingerprint derives the content-addressed keys the cache is
// indexed by: a fingerprint of a command line and a fingerprint of a
// dependency file. All fingerprints are 128-bit xxh3 sums rendered as 32
// lowercase hex digits.
package fingerprint

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// helpFlagGroups is the closed set of recognized help flags. Flags within a
// group are interchangeable; the first member is the canonical form fed to
// the hasher.
var helpFlagGroups = [][]string{
	{"-h", "--help"},
	{"-showparams", "--showparams"},
	{"-hh", "--help-all"},
}

// digest is a streaming 128-bit hash.
type digest struct {
	h xxh3.Hasher
}

func (d *digest) write(p []byte) {
	_, _ = d.h.Write(p)
}

func (d *digest) writeString(s string) {
	_, _ = d.h.WriteString(s)
}

// hex renders the two 64-bit halves, high then low, as 32 hex digits.
func (d *digest) hex() string {
	sum := d.h.Sum128()
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
}

// canonicalHelpFlag returns the canonical form of arg's help-flag group, or
// "" if arg is not a recognized help flag.
func canonicalHelpFlag(arg string) string {
	for _, group := range helpFlagGroups {
		for _, flag := range group {
			if arg == flag {
				return group[0]
			}
		}
	}
	return ""
}

// HasHelpFlag reports whether any argument is a recognized help flag. Only
// such invocations are cacheable.
func HasHelpFlag(argv []string) bool {
	for _, arg := range argv {
		if canonicalHelpFlag(arg) != "" {
			return true
		}
	}
	return false
}

// Command fingerprints an argument vector. The first prefix arguments are
// hashed verbatim; of the rest, only recognized help flags contribute. Help
// flags always contribute the canonical form of their group wherever they
// appear, so `prog -h` and `prog --help` map to the same entry under any
// prefix; a non-help argument inside the prefix still contributes. A
// negative or oversized prefix means the entire vector.
func Command(prefix int, argv []string) string {
	if prefix < 0 || prefix > len(argv) {
		prefix = len(argv)
	}

	var d digest
	for _, arg := range argv[:prefix] {
		if canonical := canonicalHelpFlag(arg); canonical != "" {
			d.writeString(canonical)
		} else {
			d.writeString(arg)
		}
	}
	for _, arg := range argv[prefix:] {
		if canonical := canonicalHelpFlag(arg); canonical != "" {
			d.writeString(canonical)
		}
	}
	return d.hex()
}
