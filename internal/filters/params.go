package filters

// Params carries decode parameters from a stream's /DecodeParms dictionary,
// translated to Go primitives. Common keys: Predictor, Columns, Colors,
// BitsPerComponent, EarlyChange, K, Rows, BlackIs1.
type Params map[string]interface{}

// getIntParam returns the integer parameter for key, or def when the key is
// absent or not numeric.
func getIntParam(params Params, key string, def int) int {
	if params == nil {
		return def
	}
	switch v := params[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// getBoolParam returns the boolean parameter for key, or def when the key is
// absent or not a boolean.
func getBoolParam(params Params, key string, def bool) bool {
	if params == nil {
		return def
	}
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}
