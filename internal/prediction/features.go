package prediction

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FeatureNames lists the features consumed by the scorer, in input order.
var FeatureNames = []string{
	"creditShort",
	"creditLong",
	"cph",
	"ctl",
	"aph",
	"atl",
	"quarterFluctuation",
}

// NormalizeFeatures coerces a raw request payload into ApplicationFeatures.
// Missing features default to 0. A value that cannot be coerced to a number
// yields an InvalidInputError naming the field.
func NormalizeFeatures(raw map[string]interface{}) (ApplicationFeatures, error) {
	var f ApplicationFeatures

	targets := map[string]*float64{
		"creditShort":        &f.CreditShort,
		"creditLong":         &f.CreditLong,
		"cph":                &f.CPH,
		"ctl":                &f.CTL,
		"aph":                &f.APH,
		"atl":                &f.ATL,
		"quarterFluctuation": &f.QuarterFluctuation,
	}

	for _, name := range FeatureNames {
		value, ok := raw[name]
		if !ok || value == nil {
			continue
		}

		parsed, err := toFloat(value)
		if err != nil {
			return ApplicationFeatures{}, &InvalidInputError{Field: name, Value: value}
		}

		*targets[name] = parsed
	}

	return f, nil
}

// toFloat converts the JSON value shapes a feature can arrive in.
func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, strconv.ErrSyntax
	}
}
