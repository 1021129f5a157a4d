package uid

import (
	"bytes"
	"fmt"
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ID is a unique identifier for all persisted records. IDs sort by creation
// time and render as base58 in text form.
type ID snowflake.ID

var idGen *snowflake.Node

func init() {
	snowflake.Epoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	var err error
	idGen, err = snowflake.NewNode(rand.Int63n(1024))
	if err != nil {
		panic(err)
	}

	for i := 0; i < len(decodeBase58Map); i++ {
		decodeBase58Map[i] = 0xFF
	}
	for i := 0; i < len(encodeBase58Map); i++ {
		decodeBase58Map[encodeBase58Map[i]] = byte(i)
	}
}

// encodeBase58Map is the alphabet used by snowflake.ID.Base58.
const encodeBase58Map = "123456789abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

var decodeBase58Map [256]byte

func New() ID {
	return ID(idGen.Generate())
}

func (u ID) String() string {
	return snowflake.ID(u).Base58()
}

func (u *ID) UnmarshalText(b []byte) error {
	id, err := Parse(b)
	if err != nil {
		return err
	}
	*u = id
	return nil
}

func (u ID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// Parse converts a base58 string to an ID. Values that decode to more than
// 63 bits, or that are not in canonical form, are rejected.
func Parse(b []byte) (ID, error) {
	switch {
	case bytes.HasPrefix(b, []byte("1")):
		return -1, fmt.Errorf("invalid base58: not in canonical form")
	case len(b) > 11:
		return -1, fmt.Errorf("invalid base58: too long")
	}

	var id int64
	for i := range b {
		if decodeBase58Map[b[i]] == 0xFF {
			return -1, fmt.Errorf("invalid base58: byte %d is out of range", i)
		}

		shifted, ok := multiplyCheckOverflow(id, 58)
		if !ok {
			return -1, fmt.Errorf("invalid base58: value too large")
		}
		id = shifted + int64(decodeBase58Map[b[i]])
		if id <= 0 {
			return -1, fmt.Errorf("invalid base58: value too large")
		}
	}

	return ID(id), nil
}

// multiplyCheckOverflow returns the result of a*b, and if the operation
// caused an overflow. Modified from
// https://groups.google.com/g/golang-nuts/c/h5oSN5t3Au4/m/KaNQREhZh0QJ
func multiplyCheckOverflow(a, b int64) (int64, bool) {
	if a == 0 || b == 0 || a == 1 || b == 1 {
		return a * b, true
	}
	total := a * b
	return total, total/b == a
}
