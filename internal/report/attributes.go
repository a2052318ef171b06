package report

import (
	"fmt"
	"strconv"
	"strings"
)

// Attribute helpers for loosely typed service payloads.
// JSON numbers arrive as float64, some services send numbers as strings,
// and optional objects may be missing or null.

// GetString extracts a string attribute, converting scalars if needed
func GetString(attrs map[string]any, key string) (string, bool) {
	val, ok := attrs[key]
	if !ok || val == nil {
		return "", false
	}

	switch v := val.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// GetInt extracts an int attribute, converting if needed
func GetInt(attrs map[string]any, key string) (int, bool) {
	val, ok := attrs[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		// "12画" and " 12 " are both seen in the wild
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "画"))
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

// GetStringSlice extracts a string slice attribute
func GetStringSlice(attrs map[string]any, key string) ([]string, bool) {
	val, ok := attrs[key]
	if !ok {
		return nil, false
	}

	switch v := val.(type) {
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			switch s := item.(type) {
			case string:
				result = append(result, s)
			case float64:
				result = append(result, strconv.FormatFloat(s, 'f', -1, 64))
			}
		}
		return result, len(result) > 0
	case []string:
		return v, true
	case string:
		if v == "" {
			return nil, false
		}
		return []string{v}, true
	}
	return nil, false
}

// GetMap extracts a nested object
func GetMap(attrs map[string]any, key string) (map[string]any, bool) {
	v, ok := attrs[key].(map[string]any)
	return v, ok
}

// GetNested follows a dot separated path through nested objects
func GetNested(attrs map[string]any, path string) (any, bool) {
	cur := attrs
	parts := strings.Split(path, ".")
	for i, p := range parts {
		val, ok := cur[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return val, true
		}
		if cur, ok = val.(map[string]any); !ok {
			return nil, false
		}
	}
	return nil, false
}

// firstString returns the first present key
func firstString(attrs map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := GetString(attrs, k); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstInt(attrs map[string]any, keys ...string) int {
	for _, k := range keys {
		if i, ok := GetInt(attrs, k); ok {
			return i
		}
	}
	return 0
}

// unwrap descends into a "result" or "data" envelope when present
func unwrap(attrs map[string]any) map[string]any {
	for _, k := range []string{"result", "data"} {
		if inner, ok := GetMap(attrs, k); ok {
			return inner
		}
	}
	return attrs
}

func decodeStar(attrs map[string]any, key string) *Star {
	switch v := attrs[key].(type) {
	case map[string]any:
		name := firstString(v, "name", "star")
		if name == "" {
			return nil
		}
		return &Star{
			Name:        name,
			Element:     firstString(v, "element", "gogyou"),
			Description: firstString(v, "characteristics", "description"),
		}
	case string:
		if v == "" {
			return nil
		}
		return &Star{Name: v}
	}
	return nil
}

// DecodeCalendar reads a calendar service payload. Missing stars stay nil.
func DecodeCalendar(raw map[string]any) (*CalendarResult, Directions, error) {
	if raw == nil {
		return nil, nil, fmt.Errorf("empty calendar payload")
	}
	attrs := unwrap(raw)

	cal := &CalendarResult{
		Year:  decodeStar(attrs, "nenban"),
		Month: decodeStar(attrs, "getsuban"),
		Day:   decodeStar(attrs, "nippan"),
	}
	if cal.Year == nil {
		cal.Year = decodeStar(attrs, "year")
	}
	if cal.Month == nil {
		cal.Month = decodeStar(attrs, "month")
	}
	if cal.Day == nil {
		cal.Day = decodeStar(attrs, "day")
	}

	var dirs Directions
	if k, ok := GetMap(attrs, "kichihoui"); ok {
		dirs = make(Directions, len(k))
		for year, v := range k {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			fav, _ := GetStringSlice(m, "kichi")
			unfav, _ := GetStringSlice(m, "kyo")
			if len(fav) == 0 && len(unfav) == 0 {
				continue
			}
			dirs[year] = DirectionFavor{Favorable: fav, Unfavorable: unfav}
		}
		if len(dirs) == 0 {
			dirs = nil
		}
	}

	if cal.Empty() && dirs == nil {
		return nil, nil, fmt.Errorf("calendar payload has no stars")
	}
	if cal.Empty() {
		cal = nil
	}
	return cal, dirs, nil
}

// DecodeNameAnalysis reads a name analysis service payload
func DecodeNameAnalysis(raw map[string]any) (*NameAnalysisResult, error) {
	if raw == nil {
		return nil, fmt.Errorf("empty name analysis payload")
	}
	attrs := unwrap(raw)

	kakusu, ok := GetMap(attrs, "kakusu")
	if !ok {
		return nil, fmt.Errorf("name analysis payload has no stroke aggregates")
	}

	res := &NameAnalysisResult{
		Aggregates: StrokeAggregates{
			Heaven:      firstInt(kakusu, "tenkaku", "heaven"),
			Personality: firstInt(kakusu, "jinkaku", "personality"),
			Earth:       firstInt(kakusu, "chikaku", "earth"),
			Total:       firstInt(kakusu, "soukaku", "total"),
			External:    firstInt(kakusu, "gaikaku", "external"),
		},
		OverallScore: firstInt(attrs, "overall_score", "overallScore"),
		Grade:        firstString(attrs, "grade"),
	}

	if chars, ok := attrs["characters"].([]any); ok {
		for _, c := range chars {
			m, ok := c.(map[string]any)
			if !ok {
				continue
			}
			res.Characters = append(res.Characters, CharacterBreakdown{
				Character: firstString(m, "character", "char"),
				Strokes:   firstInt(m, "strokeCount", "strokes"),
				Element:   firstString(m, "gogyou", "element"),
				Polarity:  firstString(m, "youin", "polarity"),
			})
		}
	}

	results, _ := attrs["kantei_results"].([]any)
	if results == nil {
		results, _ = attrs["results"].([]any)
	}
	for _, r := range results {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		res.Categories = append(res.Categories, CategoryScore{
			Category: firstString(m, "category"),
			Score:    firstInt(m, "score"),
			Message:  firstString(m, "message"),
		})
	}
	return res, nil
}
