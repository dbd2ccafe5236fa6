package services

import (
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	"github.com/fishset/fishdedup/config"
)

type settingDef struct {
	Key     string
	Type    string // "float", "int", "bool", "enum"
	Default string
	Min     float64
	Max     float64
	Options []string
}

var settingDefs = []settingDef{
	{Key: "dedup.threshold", Type: "float", Default: "96", Min: 0, Max: 100},
	{Key: "dedup.hash_size", Type: "int", Default: "8", Min: 4, Max: 16},
	{Key: "dedup.strategy", Type: "enum", Default: config.StrategyGreedy,
		Options: []string{config.StrategyGreedy, config.StrategyUnionFind}},
	{Key: "dedup.dry_run", Type: "bool", Default: "true"},
}

// SettingsService holds the run defaults used by the HTTP API. Values start
// from the loaded config and are persisted in the settings table.
type SettingsService struct {
	db    *sql.DB
	mu    sync.RWMutex
	cache map[string]string
	defs  map[string]settingDef
}

func NewSettingsService(db *sql.DB, cfg *config.AppConfig) *SettingsService {
	s := &SettingsService{
		db:    db,
		cache: make(map[string]string),
		defs:  make(map[string]settingDef),
	}

	for _, d := range settingDefs {
		s.defs[d.Key] = d
	}

	s.cache["dedup.threshold"] = strconv.FormatFloat(cfg.Dedup.Threshold, 'f', -1, 64)
	s.cache["dedup.hash_size"] = strconv.Itoa(cfg.Dedup.HashSize)
	s.cache["dedup.strategy"] = cfg.Dedup.Strategy
	// The API deletes for real only when asked explicitly.
	s.cache["dedup.dry_run"] = "true"

	s.seedDefaults()
	s.loadFromDB()

	return s
}

// seedDefaults writes default values into the DB for any settings that don't
// have a row yet, so every setting is always persisted.
func (s *SettingsService) seedDefaults() {
	for key, val := range s.cache {
		s.db.Exec(
			`INSERT OR IGNORE INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))`,
			key, val,
		)
	}
}

func (s *SettingsService) loadFromDB() {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		if _, ok := s.defs[key]; ok {
			s.cache[key] = value
		}
	}
}

func (s *SettingsService) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[key]
}

func (s *SettingsService) GetFloat64(key string) float64 {
	v, _ := strconv.ParseFloat(s.Get(key), 64)
	return v
}

func (s *SettingsService) GetInt(key string) int {
	v, _ := strconv.Atoi(s.Get(key))
	return v
}

func (s *SettingsService) GetBool(key string) bool {
	v, _ := strconv.ParseBool(s.Get(key))
	return v
}

func (s *SettingsService) Set(key string, value any) error {
	def, ok := s.defs[key]
	if !ok {
		return fmt.Errorf("unknown setting: %s", key)
	}

	strVal, err := s.validate(def, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, strVal,
	)
	if err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = strVal
	s.mu.Unlock()

	return nil
}

func (s *SettingsService) validate(def settingDef, value any) (string, error) {
	switch def.Type {
	case "float":
		v, err := toFloat64(value)
		if err != nil {
			return "", fmt.Errorf("expected float: %w", err)
		}
		if v < def.Min || v > def.Max {
			return "", fmt.Errorf("must be between %g and %g", def.Min, def.Max)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case "int":
		v, err := toInt(value)
		if err != nil {
			return "", fmt.Errorf("expected int: %w", err)
		}
		if float64(v) < def.Min || float64(v) > def.Max {
			return "", fmt.Errorf("must be between %d and %d", int(def.Min), int(def.Max))
		}
		if def.Key == "dedup.hash_size" && !config.ValidHashSize(v) {
			return "", fmt.Errorf("must be a power of two")
		}
		return strconv.Itoa(v), nil
	case "bool":
		v, err := toBool(value)
		if err != nil {
			return "", fmt.Errorf("expected bool: %w", err)
		}
		return strconv.FormatBool(v), nil
	case "enum":
		str, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("expected string")
		}
		for _, opt := range def.Options {
			if str == opt {
				return str, nil
			}
		}
		return "", fmt.Errorf("must be one of %v", def.Options)
	default:
		return "", fmt.Errorf("unknown type %s", def.Type)
	}
}

func (s *SettingsService) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]any, len(s.defs))
	for key, def := range s.defs {
		result[key] = typed(def.Type, s.cache[key])
	}
	return result
}

// Defaults returns all setting default values as typed values.
func (s *SettingsService) Defaults() map[string]any {
	result := make(map[string]any, len(s.defs))
	for _, def := range s.defs {
		result[def.Key] = typed(def.Type, def.Default)
	}
	return result
}

func typed(kind, raw string) any {
	switch kind {
	case "float":
		v, _ := strconv.ParseFloat(raw, 64)
		return v
	case "int":
		v, _ := strconv.Atoi(raw)
		return v
	case "bool":
		v, _ := strconv.ParseBool(raw)
		return v
	default:
		return raw
	}
}

// Type conversion helpers for JSON values (which come as float64, bool, or string)

func toFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(val, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

func toInt(v any) (int, error) {
	switch val := v.(type) {
	case float64:
		return int(val), nil
	case int:
		return val, nil
	case string:
		return strconv.Atoi(val)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

func toBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		return strconv.ParseBool(val)
	case float64:
		return val != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", v)
	}
}
