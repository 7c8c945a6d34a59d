package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Names of the list query parameters.
const (
	KeyStart = "_start"
	KeyEnd   = "_end"
	KeySort  = "_sort"
	KeyOrder = "_order"
	KeyQuery = "q"

	DefaultStart = 0
	DefaultEnd   = 10
)

var ErrInvalidQueryParameter = errors.New("invalid query parameter")

// Order is the direction of a sort.
type Order string

const (
	Ascending  Order = "ASC"
	Descending Order = "DESC"
)

// ParseOrder parses ASC or DESC case-insensitively. The empty string is Ascending.
func ParseOrder(value string) (Order, error) {
	switch strings.ToUpper(value) {
	case "", string(Ascending):
		return Ascending, nil
	case string(Descending):
		return Descending, nil
	default:
		return "", fmt.Errorf("%w: %s must be %s or %s, got %q",
			ErrInvalidQueryParameter, KeyOrder, Ascending, Descending, value)
	}
}

// Params are the parameters of one list request.
type Params struct {
	Start int
	End   int
	Sort  string
	Order Order
	Q     string
}

// DefaultParams returns the parameters used for a list request without query parameters.
func DefaultParams() Params {
	return Params{Start: DefaultStart, End: DefaultEnd, Order: Ascending}
}

// ParseParams reads the list parameters from the query values.
// Missing values take their defaults, malformed or negative bounds and unknown orders are rejected.
func ParseParams(values url.Values, defaultEnd int) (Params, error) {
	params := DefaultParams()
	if defaultEnd > 0 {
		params.End = defaultEnd
	}

	var err error
	if params.Start, err = parseBound(values, KeyStart, params.Start); err != nil {
		return params, err
	}
	if params.End, err = parseBound(values, KeyEnd, params.End); err != nil {
		return params, err
	}
	if params.Order, err = ParseOrder(values.Get(KeyOrder)); err != nil {
		return params, err
	}
	params.Sort = values.Get(KeySort)
	params.Q = values.Get(KeyQuery)
	return params, nil
}

func parseBound(values url.Values, key string, fallback int) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return fallback, nil
	}
	bound, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer: %v", ErrInvalidQueryParameter, key, err)
	}
	if bound < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidQueryParameter, key, bound)
	}
	return bound, nil
}

// Encode writes the parameters to url.Values, omitting empty optional values.
func (p Params) Encode() url.Values {
	values := url.Values{}
	values.Set(KeyStart, strconv.Itoa(p.Start))
	values.Set(KeyEnd, strconv.Itoa(p.End))
	if p.Sort != "" {
		values.Set(KeySort, p.Sort)
		values.Set(KeyOrder, string(p.Order))
	}
	if p.Q != "" {
		values.Set(KeyQuery, p.Q)
	}
	return values
}
