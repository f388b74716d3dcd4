package forecast

// IconKind is the local icon category for an upstream icon code.
type IconKind int

const (
	IconUnknown IconKind = iota
	IconSunny
	IconPartlyCloudy
	IconCloudy
	IconRainy
	IconStormy
	IconSnowy
	IconFoggy
)

var iconKeys = map[IconKind]string{
	IconUnknown:      "unknown",
	IconSunny:        "sunny",
	IconPartlyCloudy: "partly_cloudy",
	IconCloudy:       "cloudy",
	IconRainy:        "rainy",
	IconStormy:       "stormy",
	IconSnowy:        "snowy",
	IconFoggy:        "foggy",
}

// iconPrefixes maps the two-digit code prefix to a category. The trailing d/n
// (day/night) suffix does not change the category.
var iconPrefixes = map[string]IconKind{
	"01": IconSunny,
	"02": IconPartlyCloudy,
	"03": IconCloudy,
	"04": IconCloudy,
	"09": IconRainy,
	"10": IconRainy,
	"11": IconStormy,
	"13": IconSnowy,
	"50": IconFoggy,
}

// Key returns the local icon resource key.
func (k IconKind) Key() string {
	if s, ok := iconKeys[k]; ok {
		return s
	}
	return iconKeys[IconUnknown]
}

func (k IconKind) String() string { return k.Key() }

// IconForCode maps an OpenWeatherMap icon code such as "10n" to its category.
func IconForCode(code string) IconKind {
	if len(code) < 2 {
		return IconUnknown
	}
	if k, ok := iconPrefixes[code[:2]]; ok {
		return k
	}
	return IconUnknown
}

// IconURL returns the remote image for code, for renderers that load images.
func IconURL(code string) string {
	if code == "" {
		return ""
	}
	return "https://openweathermap.org/img/wn/" + code + "@3x.png"
}
