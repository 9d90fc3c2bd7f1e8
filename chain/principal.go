package chain

import (
	"errors"
	"strings"
	"unicode"
)

const MaxPrincipalLength = 128

var ErrInvalidPrincipal = errors.New("invalid principal")

// Principal identifies an account or a contract
type Principal string

func (p Principal) Validate() (err error) {
	if p == "" || len(p) > MaxPrincipalLength {
		return ErrInvalidPrincipal
	}
	if strings.IndexFunc(string(p), unicode.IsSpace) >= 0 {
		return ErrInvalidPrincipal
	}
	return nil
}

func (p Principal) String() (s string) { return string(p) }
