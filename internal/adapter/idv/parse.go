package idv

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

// The provider mixes string and numeric encodings for the same fields across
// deployments, so every lookup goes through the loose helpers below instead of
// struct tags.

func parseLoginOTP(raw json.RawMessage) domain.LoginOTPResult {
	m := asMap(raw)
	data := subMap(m, "data")
	return domain.LoginOTPResult{
		Status:     stringOf(m["status"]),
		DataStatus: stringOf(data["status"]),
		TokenID:    stringOf(data["tokenid"]),
		Message:    stringOf(m["message"]),
		Raw:        raw,
	}
}

func parseProductList(raw json.RawMessage) domain.ProductListResult {
	m := asMap(raw)
	data := subMap(m, "data")
	res := domain.ProductListResult{
		Status:      stringOf(m["status"]),
		StatusMsg:   stringOf(m["status_msg"]),
		ProductType: stringOf(subMap(data, "product_group")["product_type"]),
		DeviceID:    stringOf(subMap(data, "identifier")["device_id"]),
		Raw:         raw,
	}
	if list, ok := data["product_list"].([]any); ok {
		for _, item := range list {
			pm, ok := item.(map[string]any)
			if !ok {
				continue
			}
			res.Products = append(res.Products, domain.Product{
				ID:         stringOf(pm["id"]),
				Name:       stringOf(pm["name"]),
				LowerPrice: intOf(pm["lower_price"]),
			})
		}
	}
	return res
}

func parseOrder(raw json.RawMessage) domain.OrderResult {
	data := subMap(subMap(asMap(raw), "res"), "data")
	var isSuccess *int
	if v := intOf(data["is_success"]); v != nil {
		n := int(*v)
		isSuccess = &n
	}
	return domain.OrderResult{
		TrxID:     stringOf(data["trx_id"]),
		TID:       stringOf(data["t_id"]),
		IsSuccess: isSuccess,
		Raw:       raw,
	}
}

func parseStatus(raw json.RawMessage) domain.StatusResult {
	data := subMap(subMap(asMap(raw), "res"), "data")
	var isSuccess *int
	if v := intOf(data["is_success"]); v != nil {
		n := int(*v)
		isSuccess = &n
	}
	return domain.StatusResult{
		IsSuccess: isSuccess,
		Voucher:   stringOf(data["voucher"]),
		Raw:       raw,
	}
}

func parseBalance(raw json.RawMessage) domain.BalanceResult {
	m := subMap(asMap(raw), "res")
	return domain.BalanceResult{
		Balance: intOf(m["balance"]),
		Raw:     raw,
	}
}

func parseOTPTrx(raw json.RawMessage) domain.OTPTrxResult {
	m := subMap(asMap(raw), "res")
	return domain.OTPTrxResult{
		Status:    stringOf(m["status"]),
		StatusMsg: stringOf(m["status_msg"]),
		Message:   stringOf(m["message"]),
		Raw:       raw,
	}
}

func asMap(raw json.RawMessage) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func subMap(m map[string]any, key string) map[string]any {
	if sub, ok := m[key].(map[string]any); ok {
		return sub
	}
	return map[string]any{}
}

// stringOf renders a scalar the way the provider's clients expect: numbers
// without a trailing ".0", booleans as "true"/"false", everything else as-is.
func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// intOf extracts an integer from a number or digit string; nil means the
// value was absent or not numeric.
func intOf(v any) *int64 {
	switch t := v.(type) {
	case float64:
		n := int64(t)
		return &n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil
		}
		return &n
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return nil
			}
			n = int64(f)
		}
		return &n
	default:
		return nil
	}
}
