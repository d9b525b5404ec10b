package scanner

import (
	"errors"
	"sort"
	"strings"
)

// ErrNoMatchingDevice is returned when a mandatory selection finds no
// device whose name matches any configured prefix.
var ErrNoMatchingDevice = errors.New("no matching device found")

// matchesAnyPrefix reports whether name starts with any of the
// prefixes. An empty prefix list matches everything; an empty name
// matches nothing against a non-empty list.
func matchesAnyPrefix(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// SelectByPrefix returns the subset of devs whose advertised name
// starts with any of the prefixes, ordered by descending signal
// strength with ties broken by discovery order. Pure: the input slice
// is not modified.
func SelectByPrefix(devs []DeviceDescriptor, prefixes []string) []DeviceDescriptor {
	matched := make([]DeviceDescriptor, 0, len(devs))
	for _, d := range devs {
		if matchesAnyPrefix(d.Name, prefixes) {
			matched = append(matched, d)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].RSSI != matched[j].RSSI {
			return matched[i].RSSI > matched[j].RSSI
		}
		return matched[i].Order < matched[j].Order
	})
	return matched
}

// PickDevice selects the strongest matching device. It returns
// ErrNoMatchingDevice when nothing matches.
func PickDevice(devs []DeviceDescriptor, prefixes []string) (DeviceDescriptor, error) {
	matched := SelectByPrefix(devs, prefixes)
	if len(matched) == 0 {
		return DeviceDescriptor{}, ErrNoMatchingDevice
	}
	return matched[0], nil
}
