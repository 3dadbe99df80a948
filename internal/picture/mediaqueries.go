package picture

import "maps"

// DefaultMediaQueries maps breakpoint names to media queries.
func DefaultMediaQueries() map[string]string {
	return map[string]string{
		"small":     "only screen and (min-width: 0px)",
		"medium":    "only screen and (min-width: 640px)",
		"large":     "only screen and (min-width: 992px)",
		"xlarge":    "only screen and (min-width: 1440px)",
		"xxlarge":   "only screen and (min-width: 1920px)",
		"landscape": "only screen and (orientation: landscape)",
		"portrait":  "only screen and (orientation: portrait)",
		"retina": "only screen and (-webkit-min-device-pixel-ratio: 2), " +
			"only screen and (min--moz-device-pixel-ratio: 2), " +
			"only screen and (-o-min-device-pixel-ratio: 2/1), " +
			"only screen and (min-device-pixel-ratio: 2), " +
			"only screen and (min-resolution: 192dpi), " +
			"only screen and (min-resolution: 2dppx)",
	}
}

func cloneQueries(m map[string]string) map[string]string {
	return maps.Clone(m)
}
