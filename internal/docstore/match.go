package docstore

import (
	"cmp"
	"strings"
)

// Match проверяет условие field op value для документа.
//
// Сравниваются только значения одного вида (строки, числа, bool).
// Для разных видов и для отсутствующего поля выполняется лишь "!=".
// value должно быть нормализовано через NormalizeValue.
func Match(fields Fields, field string, op Operator, value any) bool {
	got, ok := fields[field]
	if !ok || value == nil {
		return op == OpNotEqual
	}
	c, ok := compare(got, value)
	if !ok {
		return op == OpNotEqual
	}
	switch op {
	case OpEqual:
		return c == 0
	case OpNotEqual:
		return c != 0
	case OpGreater:
		return c > 0
	case OpGreaterOrEqual:
		return c >= 0
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	default:
		return false
	}
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y), true
		case float64:
			return cmp.Compare(float64(x), y), true
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, float64(y)), true
		case float64:
			return cmp.Compare(x, y), true
		}
	}
	return 0, false
}
