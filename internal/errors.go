package internal

import (
	"fmt"
)

var (
	ErrNotFound   = fmt.Errorf("record not found")
	ErrDuplicate  = fmt.Errorf("duplicate record")
	ErrBadRequest = fmt.Errorf("bad request")

	ErrUnsupportedProvider = fmt.Errorf("unsupported provider")
)
