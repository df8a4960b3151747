package domain

// Metadata is an unstructured metadata container for domain entities.
type Metadata map[string]any

func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	copy := make(Metadata, len(m))
	for k, v := range m {
		copy[k] = v
	}
	return copy
}

// With returns a copy of m with key set. Empty string values are skipped so
// optional request fields do not leak into payloads as "".
func (m Metadata) With(key string, value any) Metadata {
	out := m.Clone()
	if s, ok := value.(string); ok && s == "" {
		return out
	}
	out[key] = value
	return out
}
