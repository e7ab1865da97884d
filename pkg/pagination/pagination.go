package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 100
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// Error reports a malformed or out-of-range query parameter.
type Error struct {
	Param  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("query parameter %s %s", e.Param, e.Reason)
}

// FromContext reads limit and offset from the query string. Missing values
// take the defaults; anything present must be an integer in range.
func FromContext(c echo.Context) (Params, error) {
	p := Params{Limit: DefaultLimit}

	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, &Error{Param: "limit", Reason: "must be an integer"}
		}
		p.Limit = n
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, &Error{Param: "offset", Reason: "must be an integer"}
		}
		p.Offset = n
	}

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate enforces 1 <= Limit <= MaxLimit and Offset >= 0.
func (p Params) Validate() error {
	if p.Limit < 1 || p.Limit > MaxLimit {
		return &Error{Param: "limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxLimit)}
	}
	if p.Offset < 0 {
		return &Error{Param: "offset", Reason: "must be zero or greater"}
	}
	return nil
}
