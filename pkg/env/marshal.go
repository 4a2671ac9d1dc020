package env

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// MarshalEnv renders the env-tagged fields of a struct pointer as .env lines.
// Zero values are omitted so envDefault keeps applying on the next load.
// Nested structs are flattened, honouring envPrefix.
func MarshalEnv(c any) (string, error) {
	v := reflect.ValueOf(c)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return "", fmt.Errorf("marshal env: expected pointer to struct, got %T", c)
	}

	lines, err := marshalStruct(v.Elem(), "")
	if err != nil {
		return "", err
	}

	result := strings.Join(lines, "\n")
	if result != "" {
		result += "\n"
	}
	return result, nil
}

func marshalStruct(v reflect.Value, prefix string) ([]string, error) {
	var lines []string
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		val := v.Field(i)

		if val.Kind() == reflect.Struct && field.Type != durationType {
			nested, err := marshalStruct(val, prefix+field.Tag.Get("envPrefix"))
			if err != nil {
				return nil, err
			}
			lines = append(lines, nested...)
			continue
		}

		tag := field.Tag.Get("env")
		key := strings.Split(tag, ",")[0]
		if key == "" || isZeroValue(val) {
			continue
		}

		strVal, err := formatValue(val, field)
		if err != nil {
			return nil, fmt.Errorf("marshal env %s: %w", key, err)
		}
		lines = append(lines, fmt.Sprintf("%s%s=%s", prefix, key, quote(strVal)))
	}
	return lines, nil
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return v.IsZero()
	}
}

func formatValue(v reflect.Value, field reflect.StructField) (string, error) {
	if v.Type() == durationType {
		return time.Duration(v.Int()).String(), nil
	}

	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Slice:
		sep := field.Tag.Get("envSeparator")
		if sep == "" {
			sep = ","
		}
		parts := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			s, err := formatValue(v.Index(i), field)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, sep), nil
	case reflect.Map:
		sep := field.Tag.Get("envSeparator")
		if sep == "" {
			sep = ","
		}
		kvSep := field.Tag.Get("envKeyValSeparator")
		if kvSep == "" {
			kvSep = ":"
		}
		parts := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			key, err := formatValue(k, field)
			if err != nil {
				return "", err
			}
			val, err := formatValue(v.MapIndex(k), field)
			if err != nil {
				return "", err
			}
			parts = append(parts, key+kvSep+val)
		}
		sort.Strings(parts)
		return strings.Join(parts, sep), nil
	default:
		return "", fmt.Errorf("unsupported kind %s", v.Kind())
	}
}

func quote(s string) string {
	if strings.ContainsAny(s, " #\"'\t") {
		return strconv.Quote(s)
	}
	return s
}
