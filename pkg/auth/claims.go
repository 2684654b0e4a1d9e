package auth

// resourceRoles extracts the client role grants from the resource_access
// claim: resource_access[clientID].roles. Absence of any part of the path
// yields nil rather than an error.
func resourceRoles(claims map[string]any, clientID string) []string {
	if clientID == "" {
		return nil
	}
	value := getValue(claims, "resource_access", clientID, "roles")
	return toStringSlice(value)
}

// getValue walks nested map[string]any values along the given path.
func getValue(claims map[string]any, path ...string) any {
	var current any = claims
	for _, part := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

// toStringSlice converts a claim value to []string, tolerating both
// []any (as produced by JSON decoding) and []string.
func toStringSlice(value any) []string {
	switch arr := value.(type) {
	case []string:
		return arr
	case []any:
		result := make([]string, 0, len(arr))
		for _, v := range arr {
			if s, ok := v.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}
