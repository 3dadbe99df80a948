package picture

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/nb-picture/backend/internal/models"
)

// decodeSources turns an evaluated sources attribute into source specs.
// Accepted elements are [srcset, breakpoint] pairs, bare srcset strings and
// {srcset, breakpoint} objects.
func decodeSources(in any) ([]models.SourceSpec, error) {
	invalid := &InvalidInputError{Field: "sources", Type: "Array"}

	switch t := in.(type) {
	case nil:
		return nil, invalid
	case []models.SourceSpec:
		return append([]models.SourceSpec(nil), t...), nil
	}

	v := reflect.ValueOf(in)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, invalid
	}

	specs := make([]models.SourceSpec, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		spec, err := decodeSource(v.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func decodeSource(in any) (models.SourceSpec, error) {
	switch t := in.(type) {
	case string:
		return models.SourceSpec{Srcset: t}, nil
	case models.SourceSpec:
		return t, nil
	}

	v := reflect.ValueOf(in)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		var spec models.SourceSpec
		if v.Len() == 0 {
			return spec, &InvalidInputError{Field: "sources", Type: "Array"}
		}
		srcset, ok := v.Index(0).Interface().(string)
		if !ok {
			return spec, &InvalidInputError{Field: "srcset", Type: "String"}
		}
		spec.Srcset = srcset
		if v.Len() > 1 {
			breakpoint, ok := v.Index(1).Interface().(string)
			if !ok {
				return spec, &InvalidInputError{Field: "breakpoint", Type: "String"}
			}
			spec.Breakpoint = breakpoint
		}
		return spec, nil
	case reflect.Map:
		var spec models.SourceSpec
		if err := decode(in, &spec); err != nil {
			return spec, err
		}
		return spec, nil
	}
	return models.SourceSpec{}, &InvalidInputError{Field: "sources", Type: "Array"}
}

// decodeMap turns an evaluated map attribute into a map spec.
func decodeMap(in any) (models.MapSpec, error) {
	invalid := &InvalidInputError{Field: "map", Type: "Object"}

	switch t := in.(type) {
	case nil:
		return models.MapSpec{}, invalid
	case models.MapSpec:
		return t, nil
	case *models.MapSpec:
		if t == nil {
			return models.MapSpec{}, invalid
		}
		return *t, nil
	}

	v := reflect.Indirect(reflect.ValueOf(in))
	if v.Kind() != reflect.Map && v.Kind() != reflect.Struct {
		return models.MapSpec{}, invalid
	}

	var spec models.MapSpec
	if err := decode(in, &spec); err != nil {
		return models.MapSpec{}, fmt.Errorf("decode map: %w", err)
	}
	return spec, nil
}

func decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
