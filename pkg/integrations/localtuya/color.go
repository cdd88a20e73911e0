package localtuya

import (
	"fmt"
	"math"
	"strconv"

	"github.com/lucasb-eyer/go-colorful"
)

// Colour DP encodings.
const (
	// HHHHSSSSVVVV, saturation in tenths of percent, value in device units.
	ColorHsv = "hsv"
	// RRGGBBHHHHSSVV, saturation and value on 0..255.
	ColorRgbHsv = "rgbhsv"
)

// Color is a colour as carried by the colour DP. Value is a brightness in
// device units.
type Color struct {
	// 0..360
	Hue float64
	// 0..100
	Saturation float64
	Value      int
}

// PackColor encodes c for the colour DP. upper is the maximal device
// brightness, used to derive the RGB prefix of the rgbhsv format.
func PackColor(format string, c Color, upper int) string {
	if format == ColorRgbHsv {
		brightness := float64(c.Value) / float64(upper)
		r, g, b := colorful.Hsv(c.Hue, c.Saturation/100, math.Min(1, brightness)).RGB255()
		return fmt.Sprintf("%02x%02x%02x%04x%02x%02x",
			r, g, b,
			int(math.Round(c.Hue)),
			int(math.Round(c.Saturation*255/100)),
			c.Value)
	}
	return fmt.Sprintf("%04x%04x%04x",
		int(math.Round(c.Hue)),
		int(math.Round(c.Saturation*10)),
		c.Value)
}

// UnpackColor decodes a colour DP value and reports its encoding.
func UnpackColor(value string) (Color, string, error) {
	hex := func(s string) (int, error) {
		v, err := strconv.ParseUint(s, 16, 32)
		return int(v), err
	}
	c := Color{}
	switch len(value) {
	case 14:
		hue, err := hex(value[6:10])
		if err != nil {
			return c, "", fmt.Errorf("invalid hue in '%s': %w", value, err)
		}
		sat, err := hex(value[10:12])
		if err != nil {
			return c, "", fmt.Errorf("invalid saturation in '%s': %w", value, err)
		}
		val, err := hex(value[12:14])
		if err != nil {
			return c, "", fmt.Errorf("invalid value in '%s': %w", value, err)
		}
		c.Hue, c.Saturation, c.Value = float64(hue), float64(sat)*100/255, val
		return c, ColorRgbHsv, nil
	case 12:
		hue, err := hex(value[0:4])
		if err != nil {
			return c, "", fmt.Errorf("invalid hue in '%s': %w", value, err)
		}
		sat, err := hex(value[4:8])
		if err != nil {
			return c, "", fmt.Errorf("invalid saturation in '%s': %w", value, err)
		}
		val, err := hex(value[8:12])
		if err != nil {
			return c, "", fmt.Errorf("invalid value in '%s': %w", value, err)
		}
		c.Hue, c.Saturation, c.Value = float64(hue), float64(sat)/10, val
		return c, ColorHsv, nil
	}
	return c, "", fmt.Errorf("invalid colour '%s'", value)
}

// mapRange maps value linearly from [fromLow, fromHigh] to [toLow, toHigh].
func mapRange(value float64, fromLow float64, fromHigh float64, toLow float64, toHigh float64) int {
	if fromHigh == fromLow {
		return int(toLow)
	}
	return int(math.Round(toLow + (value-fromLow)*(toHigh-toLow)/(fromHigh-fromLow)))
}
