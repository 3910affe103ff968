package excel

import (
	"fmt"
	"strconv"
	"strings"
)

// FlattenValue collapses a composite CRM value into a single cell value.
// Twenty returns composites as objects, e.g. {"primaryEmail": "a@b.com"} or
// {"firstName": "Ada", "lastName": "Lovelace"}.
func FlattenValue(value interface{}) interface{} {
	composite, ok := value.(map[string]interface{})
	if !ok {
		return value
	}

	if _, ok := composite["firstName"]; ok {
		return strings.TrimSpace(fmt.Sprintf("%s %s", str(composite["firstName"]), str(composite["lastName"])))
	}
	if _, ok := composite["lastName"]; ok {
		return strings.TrimSpace(str(composite["lastName"]))
	}
	if v, ok := composite["primaryEmail"]; ok {
		return str(v)
	}
	if v, ok := composite["primaryPhoneNumber"]; ok {
		return str(v)
	}
	if v, ok := composite["primaryLinkUrl"]; ok {
		return str(v)
	}
	if v, ok := composite["primaryLinkLabel"]; ok {
		return str(v)
	}
	if v, ok := composite["amountMicros"]; ok {
		if micros, ok := toFloat(v); ok {
			return micros / 1_000_000
		}
		return v
	}
	if _, ok := composite["addressStreet1"]; ok {
		parts := []string{
			str(composite["addressStreet1"]),
			str(composite["addressStreet2"]),
			str(composite["addressCity"]),
			str(composite["addressState"]),
			str(composite["addressPostcode"]),
			str(composite["addressCountry"]),
		}
		var present []string
		for _, p := range parts {
			if p != "" {
				present = append(present, p)
			}
		}
		return strings.Join(present, ", ")
	}
	return fmt.Sprintf("%v", composite)
}

// UnflattenValue rebuilds the composite object the CRM expects from a flat
// cell value. The record's existing CRM value, when available, serves as the
// shape template; otherwise the shape is inferred from the field name.
func UnflattenValue(field string, value interface{}, existing interface{}) interface{} {
	text := str(value)

	if template, ok := existing.(map[string]interface{}); ok {
		if _, ok := template["firstName"]; ok {
			return splitName(text)
		}
		if _, ok := template["primaryEmail"]; ok {
			return map[string]interface{}{"primaryEmail": text}
		}
		if _, ok := template["primaryPhoneNumber"]; ok {
			return map[string]interface{}{"primaryPhoneNumber": text}
		}
		if _, ok := template["primaryLinkUrl"]; ok {
			return map[string]interface{}{"primaryLinkUrl": text}
		}
		if _, ok := template["amountMicros"]; ok {
			amount, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return existing
			}
			currency := str(template["currencyCode"])
			if currency == "" {
				currency = "USD"
			}
			return map[string]interface{}{
				"amountMicros": int64(amount * 1_000_000),
				"currencyCode": currency,
			}
		}
		if _, ok := template["addressStreet1"]; ok {
			rebuilt := map[string]interface{}{}
			for k, v := range template {
				rebuilt[k] = v
			}
			rebuilt["addressStreet1"] = text
			return rebuilt
		}
		// Unknown composite, keep the CRM value untouched.
		return existing
	}

	switch name := strings.ToLower(field); {
	case name == "name":
		return splitName(text)
	case name == "email" || name == "emails":
		return map[string]interface{}{"primaryEmail": text}
	case name == "phone" || name == "phones":
		return map[string]interface{}{"primaryPhoneNumber": text}
	case strings.Contains(name, "link"):
		return map[string]interface{}{"primaryLinkUrl": text}
	case name == "address":
		return map[string]interface{}{"addressStreet1": text}
	case name == "annualrecurringrevenue" || name == "amount":
		amount, err := strconv.ParseFloat(text, 64)
		if err != nil {
			amount = 0
		}
		return map[string]interface{}{
			"amountMicros": int64(amount * 1_000_000),
			"currencyCode": "USD",
		}
	}
	return value
}

func splitName(full string) map[string]interface{} {
	first, last := full, ""
	if idx := strings.Index(full, " "); idx >= 0 {
		first, last = full[:idx], full[idx+1:]
	}
	return map[string]interface{}{"firstName": first, "lastName": last}
}

func str(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}
