package pagination

import (
	"strconv"
	"strings"
)

// RequestKind classifies a raw page number supplied by a client.
type RequestKind int

const (
	// RequestMissing means no page number was supplied.
	RequestMissing RequestKind = iota
	// RequestValid carries a parsed page number of at least 1.
	RequestValid
	// RequestNotANumber means the supplied value was not an integer.
	RequestNotANumber
	// RequestOutOfRange means the value parsed but was below 1.
	RequestOutOfRange
)

func (k RequestKind) String() string {
	switch k {
	case RequestMissing:
		return "missing"
	case RequestValid:
		return "valid"
	case RequestNotANumber:
		return "not_a_number"
	case RequestOutOfRange:
		return "out_of_range"
	default:
		return "unknown"
	}
}

// PageRequest is the parsed form of an inbound page number.
type PageRequest struct {
	kind   RequestKind
	number int
}

// FirstPage requests page 1 explicitly.
var FirstPage = PageRequest{kind: RequestValid, number: 1}

// RequestPage builds a PageRequest from an already typed number.
func RequestPage(number int) PageRequest {
	if number < 1 {
		return PageRequest{kind: RequestOutOfRange, number: number}
	}
	return PageRequest{kind: RequestValid, number: number}
}

// ParsePageNumber classifies a raw query value. present reports whether the
// parameter was supplied at all.
func ParsePageNumber(raw string, present bool) PageRequest {
	trimmed := strings.TrimSpace(raw)
	if !present || trimmed == "" {
		return PageRequest{kind: RequestMissing}
	}
	number, err := strconv.Atoi(trimmed)
	if err != nil {
		return PageRequest{kind: RequestNotANumber}
	}
	return RequestPage(number)
}

// Kind reports the classification of the request.
func (r PageRequest) Kind() RequestKind {
	return r.kind
}

// Number returns the requested page and whether it is usable as-is.
func (r PageRequest) Number() (int, bool) {
	if r.kind != RequestValid {
		return 0, false
	}
	return r.number, true
}

// ResolvePageNumber applies the fallback policy: anything that is not a
// valid page number becomes page 1, and numbers past the end become the last page.
func ResolvePageNumber(request PageRequest, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	number, ok := request.Number()
	if !ok {
		return 1
	}
	if number > totalPages {
		return totalPages
	}
	return number
}
