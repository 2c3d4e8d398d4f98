package config

import "fmt"

// Norm selects the pixel transform applied before inference.
type Norm int32

const (
	NormRaw Norm = iota
	NormUnsigned
	NormSigned
	NormWhitening
	NormImagenet
)

var normNames = [...]string{
	NormRaw:       "raw",
	NormUnsigned:  "unsigned",
	NormSigned:    "signed",
	NormWhitening: "whitening",
	NormImagenet:  "imagenet",
}

func (n Norm) String() string {
	if n < 0 || int(n) >= len(normNames) {
		return fmt.Sprintf("Norm(%d)", int32(n))
	}
	return normNames[n]
}

func (n Norm) Valid() bool {
	return n >= NormRaw && n <= NormImagenet
}

// ParseNorm maps the --norm argument to a Norm.
func ParseNorm(s string) (Norm, error) {
	for i, name := range normNames {
		if s == name {
			return Norm(i), nil
		}
	}
	return NormRaw, fmt.Errorf("unsupported image normalization method: %s", s)
}

func (n Norm) MarshalText() ([]byte, error) {
	if !n.Valid() {
		return nil, fmt.Errorf("invalid normalization %d", int32(n))
	}
	return []byte(n.String()), nil
}

func (n *Norm) UnmarshalText(b []byte) error {
	v, err := ParseNorm(string(b))
	if err != nil {
		return err
	}
	*n = v
	return nil
}
