package docdb

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// PartitionKey is the value that routes an item to its logical partition.
// The zero value is the JSON null partition key.
type PartitionKey struct {
	value interface{}
	set   bool
}

// NewPartitionKey builds a partition key from a string, number or bool value.
// Every numeric kind, json.Number included, is held as float64 so a key
// compares equal to the same number decoded from an item.
func NewPartitionKey(value interface{}) PartitionKey {
	return PartitionKey{value: normalizeKeyValue(value), set: true}
}

func normalizeKeyValue(value interface{}) interface{} {
	if number, ok := value.(json.Number); ok {
		f, err := number.Float64()
		if err != nil {
			return number.String()
		}

		return f
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	default:
		return value
	}
}

// NullPartitionKey addresses items whose partition key field is JSON null.
func NullPartitionKey() PartitionKey {
	return PartitionKey{value: nil, set: true}
}

// Value returns the underlying value.
func (pk PartitionKey) Value() interface{} {
	return pk.value
}

// Equal compares two partition keys by value.
func (pk PartitionKey) Equal(other PartitionKey) bool {
	return reflect.DeepEqual(pk.value, other.value)
}

// String renders the key the way it is sent on the wire.
func (pk PartitionKey) String() string {
	return pk.Header()
}

// Header returns the x-ms-documentdb-partitionkey header value, a one-element JSON array.
func (pk PartitionKey) Header() string {
	data, err := json.Marshal([]interface{}{pk.value})
	if err != nil {
		return "[]"
	}

	return string(data)
}

// MarshalJSON implements json.Marshaler.
func (pk PartitionKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (pk *PartitionKey) UnmarshalJSON(data []byte) error {
	var value interface{}

	err := json.Unmarshal(data, &value)
	if err != nil {
		return fmt.Errorf("parsing partition key: %w", err)
	}

	*pk = NewPartitionKey(value)

	return nil
}

// ParsePartitionKeyHeader reverses Header.
func ParsePartitionKeyHeader(header string) (PartitionKey, error) {
	var values []interface{}

	err := json.Unmarshal([]byte(header), &values)
	if err != nil {
		return PartitionKey{}, fmt.Errorf("parsing partition key header: %w", err)
	}

	if len(values) != 1 {
		return PartitionKey{}, fmt.Errorf("%w: expected one component, got %d", ErrInvalidPartitionKey, len(values))
	}

	return NewPartitionKey(values[0]), nil
}

// SplitPartitionKeyPath splits "/address/city" into its segments.
func SplitPartitionKeyPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") || len(path) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPartitionKey, path)
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for _, segment := range segments {
		if segment == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPartitionKey, path)
		}
	}

	return segments, nil
}

// ExtractPartitionKey reads the partition key value at path from a decoded document.
// The boolean is false when the path is absent.
func ExtractPartitionKey(document map[string]interface{}, path string) (PartitionKey, bool) {
	segments, err := SplitPartitionKeyPath(path)
	if err != nil {
		return PartitionKey{}, false
	}

	var current interface{} = document

	for _, segment := range segments {
		object, ok := current.(map[string]interface{})
		if !ok {
			return PartitionKey{}, false
		}

		current, ok = object[segment]
		if !ok {
			return PartitionKey{}, false
		}
	}

	switch current.(type) {
	case map[string]interface{}, []interface{}:
		return PartitionKey{}, false
	}

	return NewPartitionKey(current), true
}

// ResolvePartitionKey validates an item against its container's partition key path.
// When supplied is nil the key is taken from the item. A supplied key that disagrees
// with the item's field, or an item with no field at the path, is rejected.
func ResolvePartitionKey(document map[string]interface{}, path string, supplied *PartitionKey) (PartitionKey, error) {
	itemKey, found := ExtractPartitionKey(document, path)

	if !found {
		if supplied != nil && supplied.set && supplied.value == nil {
			return *supplied, nil
		}

		return PartitionKey{}, &PartitionKeyMismatchError{Path: path, Missing: true}
	}

	if supplied != nil && !supplied.Equal(itemKey) {
		return PartitionKey{}, &PartitionKeyMismatchError{Path: path, Item: itemKey, Supplied: *supplied}
	}

	return itemKey, nil
}
