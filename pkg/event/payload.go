package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Detail is the typed, category-specific part of a payload.
type Detail interface {
	Category() Category
}

type FeedingDetail struct {
	Method          string   `json:"method,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	Unit            string   `json:"unit,omitempty"`
	Side            string   `json:"side,omitempty"`
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
	Foods           []string `json:"foods,omitempty"`
}

type SleepDetail struct {
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
	Quality         string   `json:"quality,omitempty"`
	Location        string   `json:"location,omitempty"`
	Start           string   `json:"start,omitempty"`
	End             string   `json:"end,omitempty"`
}

type DiaperDetail struct {
	Condition   string `json:"condition,omitempty"`
	Color       string `json:"color,omitempty"`
	Consistency string `json:"consistency,omitempty"`
}

type HealthDetail struct {
	Symptom     string   `json:"symptom,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Medication  string   `json:"medication,omitempty"`
	Dosage      string   `json:"dosage,omitempty"`
	Provider    string   `json:"provider,omitempty"`
}

type GrowthDetail struct {
	Measurement string   `json:"measurement,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Percentile  *float64 `json:"percentile,omitempty"`
}

type MilestoneDetail struct {
	Domain      string `json:"domain,omitempty"`
	Description string `json:"description,omitempty"`
}

type ActivityDetail struct {
	Activity        string   `json:"activity,omitempty"`
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
	Location        string   `json:"location,omitempty"`
}

type MoodDetail struct {
	Mood      string `json:"mood,omitempty"`
	Intensity string `json:"intensity,omitempty"`
}

type NoteDetail struct {
	Text string `json:"text,omitempty"`
}

func (FeedingDetail) Category() Category   { return CategoryFeeding }
func (SleepDetail) Category() Category     { return CategorySleep }
func (DiaperDetail) Category() Category    { return CategoryDiaper }
func (HealthDetail) Category() Category    { return CategoryHealth }
func (GrowthDetail) Category() Category    { return CategoryGrowth }
func (MilestoneDetail) Category() Category { return CategoryMilestone }
func (ActivityDetail) Category() Category  { return CategoryActivity }
func (MoodDetail) Category() Category      { return CategoryMood }
func (NoteDetail) Category() Category      { return CategoryNote }

var detailTypes = map[Category]reflect.Type{
	CategoryFeeding:   reflect.TypeOf(FeedingDetail{}),
	CategorySleep:     reflect.TypeOf(SleepDetail{}),
	CategoryDiaper:    reflect.TypeOf(DiaperDetail{}),
	CategoryHealth:    reflect.TypeOf(HealthDetail{}),
	CategoryGrowth:    reflect.TypeOf(GrowthDetail{}),
	CategoryMilestone: reflect.TypeOf(MilestoneDetail{}),
	CategoryActivity:  reflect.TypeOf(ActivityDetail{}),
	CategoryMood:      reflect.TypeOf(MoodDetail{}),
	CategoryNote:      reflect.TypeOf(NoteDetail{}),
}

// Payload is the tagged union carried by candidates and projections: a typed
// Detail keyed by category plus every field the detail does not know about.
type Payload struct {
	Category Category
	Detail   Detail
	Extra    map[string]any
}

// ErrInvalidPayload is returned when a known field holds a value that cannot
// be coerced into its typed form.
var ErrInvalidPayload = errors.New("invalid event payload")

var leadingNumber = regexp.MustCompile(`^\s*(-?\d+(?:[.,]\d+)?)\s*([a-zA-Z°%]*)\s*$`)

// DecodePayload validates fields against the category's typed detail.
// Unknown categories keep everything in Extra with a nil Detail.
func DecodePayload(c Category, fields map[string]any) (Payload, error) {
	p := Payload{Category: c, Extra: map[string]any{}}

	typ, ok := detailTypes[c]
	if !ok {
		for k, v := range fields {
			p.Extra[k] = v
		}
		return p, nil
	}

	known := map[string]reflect.StructField{}
	for i := range typ.NumField() {
		f := typ.Field(i)
		known[jsonName(f)] = f
	}

	typed := map[string]any{}
	for k, v := range fields {
		f, isKnown := known[k]
		if !isKnown {
			p.Extra[k] = v
			continue
		}
		coerced, err := coerce(f, v, fields, typed)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, k, err)
		}
		if coerced == nil || coerced == "" {
			continue
		}
		typed[k] = coerced
	}

	data, err := json.Marshal(typed)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	ptr := reflect.New(typ)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	p.Detail = ptr.Elem().Interface().(Detail)

	return p, nil
}

// Map flattens the payload back into the generic key/value form used for
// storage. Typed fields win over extras with the same key.
func (p Payload) Map() map[string]any {
	out := map[string]any{}
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.Detail == nil {
		return out
	}

	data, err := json.Marshal(p.Detail)
	if err != nil {
		return out
	}
	var typed map[string]any
	if err := json.Unmarshal(data, &typed); err != nil {
		return out
	}
	for k, v := range typed {
		out[k] = v
	}
	return out
}

// coerce adapts loosely-typed model output to the field's declared type:
// "120ml" becomes 120 (filling an empty unit), "carrots" becomes ["carrots"].
func coerce(f reflect.StructField, v any, fields, typed map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}

	ft := f.Type
	if ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}

	switch ft.Kind() {
	case reflect.Float64:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		case string:
			m := leadingNumber.FindStringSubmatch(n)
			if m == nil {
				return nil, fmt.Errorf("not a number: %q", n)
			}
			num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
			if err != nil {
				return nil, err
			}
			if m[2] != "" {
				if u, ok := fields["unit"].(string); !ok || u == "" {
					typed["unit"] = strings.ToLower(m[2])
				}
			}
			return num, nil
		default:
			return nil, fmt.Errorf("unexpected %T", v)
		}

	case reflect.Slice:
		switch s := v.(type) {
		case []string:
			return s, nil
		case string:
			parts := []string{}
			for _, p := range strings.Split(s, ",") {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
			return parts, nil
		case []any:
			parts := make([]string, 0, len(s))
			for _, item := range s {
				parts = append(parts, fmt.Sprint(item))
			}
			return parts, nil
		default:
			return nil, fmt.Errorf("unexpected %T", v)
		}

	case reflect.String:
		switch s := v.(type) {
		case string:
			return s, nil
		case float64, bool:
			return fmt.Sprint(s), nil
		default:
			return nil, fmt.Errorf("unexpected %T", v)
		}
	}

	return v, nil
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return f.Name
}
