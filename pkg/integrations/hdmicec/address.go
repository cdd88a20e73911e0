package hdmicec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// PhysicalAddress is a CEC physical address, one nibble per HDMI hop.
type PhysicalAddress [4]int

func ParsePhysicalAddress(s string) (PhysicalAddress, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 4 {
		return PhysicalAddress{}, fmt.Errorf("invalid physical address '%s'", s)
	}
	ports := make([]int, 0, len(parts))
	for _, part := range parts {
		port, err := strconv.Atoi(part)
		if err != nil {
			return PhysicalAddress{}, fmt.Errorf("invalid physical address '%s': %w", s, err)
		}
		ports = append(ports, port)
	}
	return PadPhysicalAddress(ports)
}

// PadPhysicalAddress right-pads ports with zeros up to four nibbles.
func PadPhysicalAddress(ports []int) (PhysicalAddress, error) {
	address := PhysicalAddress{}
	if len(ports) > len(address) {
		return address, fmt.Errorf("physical address %v is deeper than %d levels", ports, len(address))
	}
	for i, port := range ports {
		if port < 0 || port > 0xF {
			return address, fmt.Errorf("invalid port %d in physical address %v", port, ports)
		}
		address[i] = port
	}
	return address, nil
}

func (a PhysicalAddress) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

func (a PhysicalAddress) less(b PhysicalAddress) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// NamedAddress is one device of the configured topology.
type NamedAddress struct {
	Name    string
	Address PhysicalAddress
}

// ParseMapping flattens the nested devices configuration, where each key is
// a port and each value a device name or a mapping for the devices behind
// that port.
func ParseMapping(mapping map[string]interface{}) ([]NamedAddress, error) {
	result := []NamedAddress{}
	if err := parseMapping(mapping, nil, &result); err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address.less(result[j].Address)
	})
	return result, nil
}

func parseMapping(mapping map[string]interface{}, parents []int, result *[]NamedAddress) error {
	for key, value := range mapping {
		port, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return fmt.Errorf("invalid port '%s': %w", key, err)
		}
		ports := append(append([]int{}, parents...), port)
		if name, ok := value.(string); ok {
			address, err := PadPhysicalAddress(ports)
			if err != nil {
				return err
			}
			*result = append(*result, NamedAddress{Name: name, Address: address})
			continue
		}
		nested, err := cast.ToStringMapE(value)
		if err != nil {
			return fmt.Errorf("invalid value for port %v: %w", ports, err)
		}
		if err := parseMapping(nested, ports, result); err != nil {
			return err
		}
	}
	return nil
}
