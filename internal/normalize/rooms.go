package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// RoomInfo holds room counts parsed from a property-info label map. Nil
// means the site did not state the value.
type RoomInfo struct {
	Rooms     *int `json:"rooms,omitempty"`
	Bedrooms  *int `json:"bedrooms,omitempty"`
	Bathrooms *int `json:"bathrooms,omitempty"`
}

var leadingIntRe = regexp.MustCompile(`\d+`)

// ParseRoomInfo scans the additional-data label map of a raw listing for
// Croatian room labels. Bedroom labels are matched before the generic room
// label because "broj spavaćih soba" contains both.
func ParseRoomInfo(labels map[string]string) RoomInfo {
	var info RoomInfo
	for label, value := range labels {
		key := strings.ToLower(label)
		n, ok := firstInt(value)
		if !ok {
			continue
		}
		switch {
		case strings.Contains(key, "spava"):
			info.Bedrooms = &n
		case strings.Contains(key, "kupaon"):
			info.Bathrooms = &n
		case strings.Contains(key, "soba") || strings.Contains(key, "sobnost") || key == "sobe":
			info.Rooms = &n
		}
	}
	return info
}

func firstInt(s string) (int, bool) {
	m := leadingIntRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
