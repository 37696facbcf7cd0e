package parser

import (
	"encoding/json"
	"strings"

	"github.com/aluiziolira/kaspi-offer-tracker/models"
)

// SpecGroup is one specification group as embedded in the product page.
type SpecGroup struct {
	Name     string        `json:"name"`
	Features []SpecFeature `json:"features"`
}

// SpecFeature is a named feature with one or more values.
type SpecFeature struct {
	Name          string         `json:"name"`
	FeatureValues []FeatureValue `json:"featureValues"`
}

// FeatureValue holds a single feature value.
type FeatureValue struct {
	Value textValue `json:"value"`
}

// textValue accepts both JSON strings and bare numbers/booleans.
type textValue string

func (v *textValue) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = textValue(s)
		return nil
	}
	if string(data) == "null" {
		*v = ""
		return nil
	}
	*v = textValue(data)
	return nil
}

// NormalizeSpecifications reshapes the group list into group -> feature ->
// values joined with ", ". Repeated group or feature names overwrite earlier
// ones. A feature without values maps to the empty string.
func NormalizeSpecifications(groups []SpecGroup) models.Specifications {
	out := make(models.Specifications, len(groups))
	for _, group := range groups {
		features := make(map[string]string, len(group.Features))
		for _, feature := range group.Features {
			values := make([]string, 0, len(feature.FeatureValues))
			for _, fv := range feature.FeatureValues {
				values = append(values, string(fv.Value))
			}
			features[feature.Name] = strings.Join(values, ", ")
		}
		out[group.Name] = features
	}
	return out
}

// FlattenSpecifications turns a normalized map back into the group list,
// one value per feature.
func FlattenSpecifications(specs models.Specifications) []SpecGroup {
	groups := make([]SpecGroup, 0, len(specs))
	for name, features := range specs {
		group := SpecGroup{Name: name, Features: make([]SpecFeature, 0, len(features))}
		for featureName, value := range features {
			feature := SpecFeature{Name: featureName, FeatureValues: []FeatureValue{}}
			if value != "" {
				feature.FeatureValues = append(feature.FeatureValues, FeatureValue{Value: textValue(value)})
			}
			group.Features = append(group.Features, feature)
		}
		groups = append(groups, group)
	}
	return groups
}
