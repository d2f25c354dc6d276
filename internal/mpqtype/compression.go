package mpqtype

import "strings"

// Compression is the one-byte tag prefixed to compressed sector data.
// Bits may be combined; LZMA is exclusive.
type Compression uint8

const (
	CompressionHuffman     Compression = 0x01
	CompressionZlib        Compression = 0x02
	CompressionPKWare      Compression = 0x08
	CompressionBzip2       Compression = 0x10
	CompressionSparse      Compression = 0x20
	CompressionADPCMMono   Compression = 0x40
	CompressionADPCMStereo Compression = 0x80
	CompressionLZMA        Compression = 0x12
)

// String returns the human-readable name of the compression tag.
func (c Compression) String() string {
	switch c {
	case 0:
		return "none"
	case CompressionLZMA:
		return "lzma"
	}
	names := []struct {
		c    Compression
		name string
	}{
		{CompressionBzip2, "bzip2"},
		{CompressionPKWare, "pkware"},
		{CompressionZlib, "zlib"},
		{CompressionHuffman, "huffman"},
		{CompressionADPCMStereo, "adpcm-stereo"},
		{CompressionADPCMMono, "adpcm-mono"},
		{CompressionSparse, "sparse"},
	}
	var parts []string
	for _, n := range names {
		if c&n.c != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}

// ChecksumPolicy controls how sector and attribute checksums are handled.
type ChecksumPolicy uint8

const (
	// ChecksumWarn verifies checksums and logs mismatches without failing.
	ChecksumWarn ChecksumPolicy = iota
	// ChecksumIgnore skips checksum verification.
	ChecksumIgnore
	// ChecksumStrict fails extraction with ErrChecksumMismatch.
	ChecksumStrict
)

// String returns the policy name.
func (p ChecksumPolicy) String() string {
	switch p {
	case ChecksumWarn:
		return "warn"
	case ChecksumIgnore:
		return "ignore"
	case ChecksumStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParseChecksumPolicy parses a policy name as returned by String.
func ParseChecksumPolicy(s string) (ChecksumPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn":
		return ChecksumWarn, true
	case "ignore", "off":
		return ChecksumIgnore, true
	case "strict":
		return ChecksumStrict, true
	default:
		return 0, false
	}
}
