package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		Storage
		Database
		Loans
		Audit
		OverdueReport
	}

	Storage struct {
		Kind    string // "file" or "relational", see storage.ParseKind for aliases
		DataDir string // Directory of the file backend's JSON collections
	}
	Database struct {
		DSN    string // SQLite path or PostgreSQL URL/DSN
		LogSQL bool
	}
	Loans struct {
		Period time.Duration
	}
	Audit struct {
		Dir string // Empty disables the journal
	}
	OverdueReport struct {
		Schedule string // Cron format: "0 9 * * *" = daily at 09:00
	}
)

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("data_source", DefaultDataSource)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("database_dsn", "")
	v.SetDefault("database_log_sql", false)
	v.SetDefault("loan_period", DefaultLoanPeriod)
	v.SetDefault("audit_dir", DefaultAuditDir)
	v.SetDefault("overdue_report_schedule", DefaultOverdueReportSchedule)
	return v
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Storage: Storage{
			Kind:    v.GetString("DATA_SOURCE"),
			DataDir: v.GetString("DATA_DIR"),
		},
		Database: Database{
			DSN:    v.GetString("DATABASE_DSN"),
			LogSQL: v.GetBool("DATABASE_LOG_SQL"),
		},
		Loans: Loans{
			Period: v.GetDuration("LOAN_PERIOD"),
		},
		Audit: Audit{
			Dir: v.GetString("AUDIT_DIR"),
		},
		OverdueReport: OverdueReport{
			Schedule: v.GetString("OVERDUE_REPORT_SCHEDULE"),
		},
	}
}

// NewConfig reads the configuration from the environment.
func NewConfig() *Config {
	return fromViper(newViper())
}

// Load reads the configuration from the environment overlaid on path, a JSON,
// YAML or TOML file with the same keys in lower case. Environment variables
// win over the file. An empty path behaves like NewConfig.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return fromViper(v), nil
}
