package pagination

import (
	"encoding/json"
	"slices"
	"strconv"
)

// GapMarker is rendered in place of omitted page numbers.
const GapMarker = "…"

// PageLink is one entry of a page range summary: a page number or a gap.
type PageLink struct {
	Number int
	Gap    bool
}

// PageNumberLink returns a link to a concrete page.
func PageNumberLink(number int) PageLink {
	return PageLink{Number: number}
}

// GapLink returns a gap marker entry.
func GapLink() PageLink {
	return PageLink{Gap: true}
}

func (l PageLink) String() string {
	if l.Gap {
		return GapMarker
	}
	return strconv.Itoa(l.Number)
}

// MarshalJSON renders page numbers as JSON numbers and gaps as the marker string.
func (l PageLink) MarshalJSON() ([]byte, error) {
	if l.Gap {
		return json.Marshal(GapMarker)
	}
	return json.Marshal(l.Number)
}

// PageRange builds the compact navigation summary for the current page.
// The first, last, previous, current and next pages are always listed; a gap
// of exactly one page is filled with that page and longer gaps collapse to a marker.
func PageRange(current, last int) []PageLink {
	if last < 1 {
		last = 1
	}
	if current < 1 {
		current = 1
	}
	if current > last {
		current = last
	}

	anchors := make([]int, 0, 5)
	for _, candidate := range []int{1, last, current - 1, current, current + 1} {
		if candidate < 1 || candidate > last {
			continue
		}
		if slices.Contains(anchors, candidate) {
			continue
		}
		anchors = append(anchors, candidate)
	}
	slices.Sort(anchors)

	links := make([]PageLink, 0, len(anchors)*2)
	for index, page := range anchors {
		if index > 0 {
			previous := anchors[index-1]
			switch gap := page - previous; {
			case gap == 2:
				links = append(links, PageNumberLink(previous+1))
			case gap > 2:
				links = append(links, GapLink())
			}
		}
		links = append(links, PageNumberLink(page))
	}
	return links
}
