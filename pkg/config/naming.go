package config

import "gorm.io/gorm/schema"

// tableNamer is gorm's default naming strategy with per-model table overrides.
// Overrides apply everywhere gorm derives a table name, preloads included.
type tableNamer struct {
	schema.NamingStrategy
	overrides map[string]string
}

// NewNamingStrategy returns a schema.Namer honouring overrides keyed by model struct name.
func NewNamingStrategy(overrides map[string]string) schema.Namer {
	return tableNamer{overrides: overrides}
}

func (n tableNamer) TableName(str string) string {
	if name := n.overrides[str]; name != "" {
		return name
	}
	return n.NamingStrategy.TableName(str)
}
