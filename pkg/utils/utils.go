package utils

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func PrettyPrint(value interface{}) string {
	b, err := json.Marshal(value)
	if err != nil {
		log.Info().Err(err).Msg("Cannot pretty print")
	}
	return string(b)
}

func RemoveRegexp(value string, expression string) string {
	if expression == "" {
		return value
	}
	regex := regexp.MustCompile("(?i)" + expression)
	return strings.TrimSpace(regex.ReplaceAllString(value, ""))
}

// NormalizeForTopicName keeps the characters allowed in a topic level and
// replaces spaces and slashes by underscores.
func NormalizeForTopicName(item string) string {
	var output strings.Builder
	for i := 0; i < len(item); i++ {
		c := item[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			output.WriteByte(c)
		} else if c == ' ' || c == '/' || c == '.' || c == ':' {
			output.WriteByte('_')
		}
	}
	return output.String()
}

// TitleCase turns "medium_high" or "living room" into "Medium High" or
// "Living Room".
func TitleCase(value string) string {
	value = strings.ReplaceAll(value, "_", " ")
	return cases.Title(language.AmericanEnglish).String(value)
}
