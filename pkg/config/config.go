package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Type           string `yaml:"type" json:"type" validate:"required"`
	Host           string `yaml:"host" json:"host"`
	Port           int    `yaml:"port" json:"port"`
	Username       string `yaml:"username" json:"username"`
	Password       string `yaml:"password" json:"password"`
	DatabaseName   string `yaml:"database_name" json:"database_name"`
	DSN            string `yaml:"dsn" json:"dsn"` // optional explicit DSN
	TablePrefix    string `yaml:"table_prefix" json:"table_prefix" validate:"omitempty,sqlident"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gte=0"`
}

type ServerConfig struct {
	Port int `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
}

// StructureConfig names the tables the heuristic checks are built around.
type StructureConfig struct {
	Modules            string `yaml:"modules" validate:"required,sqlident"`
	ModuleLink         string `yaml:"module_link" validate:"required,sqlident"`
	Sections           string `yaml:"sections" validate:"required,sqlident"`
	Course             string `yaml:"course" validate:"required,sqlident"`
	GradeItems         string `yaml:"grade_items" validate:"required,sqlident"`
	GradeGradesHistory string `yaml:"grade_grades_history" validate:"required,sqlident"`
}

type ScanConfig struct {
	BatchSize         int             `yaml:"batch_size" validate:"gt=0"`
	SkipTables        []string        `yaml:"skip_tables"`
	CheckGradeHistory bool            `yaml:"check_grade_history"`
	SchemaFile        string          `yaml:"schema_file"`
	RecordsTable      string          `yaml:"records_table" validate:"required,sqlident"`
	Structure         StructureConfig `yaml:"structure"`
}

type RetentionConfig struct {
	DeletedLifetime time.Duration `yaml:"deleted_lifetime" validate:"gt=0"`
}

type ScheduleConfig struct {
	Scan     string `yaml:"scan"`
	Sweep    string `yaml:"sweep"`
	Timezone string `yaml:"timezone"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format     string `yaml:"format" validate:"omitempty,oneof=text json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

type AppConfig struct {
	Database  DBConfig        `yaml:"database" json:"database"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Scan      ScanConfig      `yaml:"scan" json:"-"`
	Retention RetentionConfig `yaml:"retention" json:"-"`
	Schedule  ScheduleConfig  `yaml:"schedule" json:"-"`
	Log       LogConfig       `yaml:"log" json:"-"`
}

const (
	DefaultBatchSize       = 1000000
	DefaultDeletedLifetime = 30 * 24 * time.Hour
	DefaultTimeoutSeconds  = 10
)

// Default returns the configuration used for anything a config file leaves out.
func Default() AppConfig {
	return AppConfig{
		Database: DBConfig{TimeoutSeconds: DefaultTimeoutSeconds},
		Server:   ServerConfig{Port: 8080},
		Scan: ScanConfig{
			BatchSize:    DefaultBatchSize,
			SkipTables:   []string{"logstore_standard_log"},
			RecordsTable: "orphaned_records",
			Structure: StructureConfig{
				Modules:            "modules",
				ModuleLink:         "course_modules",
				Sections:           "course_sections",
				Course:             "course",
				GradeItems:         "grade_items",
				GradeGradesHistory: "grade_grades_history",
			},
		},
		Retention: RetentionConfig{DeletedLifetime: DefaultDeletedLifetime},
		Schedule: ScheduleConfig{
			Scan:  "0 2 * * *",
			Sweep: "0 4 * * *",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadFile loads YAML config from path on top of Default.
func LoadFile(path string) (AppConfig, error) {
	cfg := Default()
	f, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, err
	}
	if err := yaml.Unmarshal(f, &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides the database driver and DSN from the environment.
func ApplyEnv(cfg *AppConfig) {
	if v := os.Getenv("ORPHANSCAN_DRIVER"); v != "" {
		cfg.Database.Type = v
	}
	if v := os.Getenv("ORPHANSCAN_DSN"); v != "" {
		cfg.Database.DSN = v
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdent reports whether s is safe to splice into SQL as a bare identifier.
func IsIdent(s string) bool {
	return identPattern.MatchString(s)
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return IsIdent(fl.Field().String())
	})
	return v
}

// Validate checks cfg against its struct tags and the identifier rules.
func Validate(cfg AppConfig) error {
	if err := newValidator().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, t := range cfg.Scan.SkipTables {
		if !IsIdent(t) {
			return fmt.Errorf("invalid config: skip table %q is not an identifier", t)
		}
	}
	return nil
}

// NormalizeDriver maps common aliases to canonical keys (keeps backwards compat).
func NormalizeDriver(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "postgresql", "pg", "postgres":
		return "postgres"
	case "mysql", "mariadb":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "mssql", "sqlserver":
		return "sqlserver"
	case "godror", "oracle":
		return "godror"
	default:
		return strings.ToLower(d)
	}
}

// BuildDriverAndDSN produces a driver name and DSN string for supported DB types.
func BuildDriverAndDSN(db DBConfig) (driver string, dsn string, err error) {
	// If explicit DSN provided, user must also set Type to choose driver or we guess
	t := NormalizeDriver(db.Type)

	if db.DSN != "" {
		return t, db.DSN, nil
	}

	switch t {
	case "postgres":
		driver = "postgres"
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			db.Username, db.Password, db.Host, db.Port, db.DatabaseName)
	case "mysql":
		driver = "mysql"
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			db.Username, db.Password, db.Host, db.Port, db.DatabaseName)
	case "sqlite":
		driver = "sqlite"
		if db.DatabaseName == "" {
			return "", "", fmt.Errorf("sqlite needs a file path in database_name")
		}
		// read-write: reconciliation deletes and restores rows
		dsn = fmt.Sprintf("file:%s", db.DatabaseName)
	case "sqlserver":
		driver = "sqlserver"
		dsn = fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			db.Username, db.Password, db.Host, db.Port, db.DatabaseName)
	case "godror":
		driver = "godror"
		// simple EZCONNECT style; may need adjustments per environment
		dsn = fmt.Sprintf("%s/%s@%s:%d/%s",
			db.Username, db.Password, db.Host, db.Port, db.DatabaseName)
	default:
		err = fmt.Errorf("unsupported database type: %s", db.Type)
	}
	return
}
