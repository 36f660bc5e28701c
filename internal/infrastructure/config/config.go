package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	StateDB   StateDBConfig
	ERPDB     ERPDBConfig
	Radius    RadiusConfig
	Workflow  WorkflowConfig
	Trading   TradingConfig
	Scheduler SchedulerConfig
	Hold      HoldConfig
	Retention RetentionConfig
	Notify    NotifyConfig
	Lock      LockConfig
	Ops       OpsConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// StateDBConfig holds the workflow state database connection settings
type StateDBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// ERPDBConfig holds connection strings for the ERP database sessions.
// The read-only session serves lookups; the read-write session serves the
// direct status corrections.
type ERPDBConfig struct {
	ReadOnlyDSN  string
	ReadWriteDSN string
}

// RadiusConfig holds the ERP REST adapter settings
type RadiusConfig struct {
	APIURL         string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// WorkflowConfig holds the business predicates that scope eligibility and
// requirement queries, plus the derived-item prefix rules.
type WorkflowConfig struct {
	CompanyNum       int
	SourcePlant      string
	FulfillmentPlant string
	SourceCode       string
	ProdGroupCode    string
	ReqGroupCode     string
	// EligibilityStartDate is the earliest order date considered (YYYY-MM-DD)
	EligibilityStartDate  string
	PurchaseItemPrefix    string
	FulfillmentItemPrefix string
}

// TradingConfig holds the trading-partner identities and commercial terms
// stamped onto the documents the workflow creates. The purchase order is
// raised against the supplier account that represents the source plant; the
// fulfillment sales order and shipping request are raised against the
// customer account that represents it on the fulfillment side.
type TradingConfig struct {
	SupplierCode      string
	SupplierAddrNum   string
	SupplierWarehouse string
	SupplierTerms     string
	CustomerCode      string
	CustomerTerms     string
	BillAddrNum       int
	ShipAddrNum       int
	DeliveryTerms     string
	CurrencyCode      string
	// Transfer pricing: documents between the two plants carry a nominal
	// unit price rather than a commercial one.
	UnitPrice     float64
	PriceUnitCode string
	PriceGroupNo  int
}

// SchedulerConfig holds the run-cycle settings
type SchedulerConfig struct {
	RunInterval     time.Duration
	MaxOrdersPerRun int
	CycleTimeout    time.Duration
	OrderTimeout    time.Duration
	MaxWorkers      int
}

// HoldConfig holds the hold-aging thresholds
type HoldConfig struct {
	ReminderAfter    time.Duration
	ReminderInterval time.Duration
	EscalateAfter    time.Duration
}

// RetentionConfig holds the state-store retention windows
type RetentionConfig struct {
	ArchiveAfterDays   int
	PurgeRunsAfterDays int
}

// NotifyConfig holds notification routing settings
type NotifyConfig struct {
	// Mode is "log" (emit via logger) or "outbox" (append to delivery table)
	Mode        string
	CSREmails   []string
	AdminEmails []string
}

// LockConfig holds the per-order lock settings
type LockConfig struct {
	// Backend is "memory" or "redis"
	Backend  string
	Host     string
	Port     int
	Password string
	DB       int
	LeaseTTL time.Duration
}

// OpsConfig holds the operations API settings
type OpsConfig struct {
	Enabled bool
	Port    string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LWS_ prefix (e.g. LWS_STATEDB_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("LWS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		StateDB: StateDBConfig{
			Host:            v.GetString("statedb.host"),
			Port:            v.GetInt("statedb.port"),
			User:            v.GetString("statedb.user"),
			Password:        v.GetString("statedb.password"),
			DBName:          v.GetString("statedb.dbname"),
			SSLMode:         v.GetString("statedb.sslmode"),
			MaxOpenConns:    v.GetInt("statedb.max_open_conns"),
			MaxIdleConns:    v.GetInt("statedb.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("statedb.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("statedb.conn_max_idle_time"),
		},
		ERPDB: ERPDBConfig{
			ReadOnlyDSN:  v.GetString("erpdb.readonly_dsn"),
			ReadWriteDSN: v.GetString("erpdb.readwrite_dsn"),
		},
		Radius: RadiusConfig{
			APIURL:         v.GetString("radius.api_url"),
			Timeout:        v.GetDuration("radius.timeout"),
			RetryAttempts:  v.GetInt("radius.retry_attempts"),
			RetryBaseDelay: v.GetDuration("radius.retry_base_delay"),
		},
		Workflow: WorkflowConfig{
			CompanyNum:            v.GetInt("workflow.company_num"),
			SourcePlant:           v.GetString("workflow.source_plant"),
			FulfillmentPlant:      v.GetString("workflow.fulfillment_plant"),
			SourceCode:            v.GetString("workflow.source_code"),
			ProdGroupCode:         v.GetString("workflow.prod_group_code"),
			ReqGroupCode:          v.GetString("workflow.req_group_code"),
			EligibilityStartDate:  v.GetString("workflow.eligibility_start_date"),
			PurchaseItemPrefix:    v.GetString("workflow.purchase_item_prefix"),
			FulfillmentItemPrefix: v.GetString("workflow.fulfillment_item_prefix"),
		},
		Trading: TradingConfig{
			SupplierCode:      v.GetString("trading.supplier_code"),
			SupplierAddrNum:   v.GetString("trading.supplier_addr_num"),
			SupplierWarehouse: v.GetString("trading.supplier_warehouse"),
			SupplierTerms:     v.GetString("trading.supplier_terms"),
			CustomerCode:      v.GetString("trading.customer_code"),
			CustomerTerms:     v.GetString("trading.customer_terms"),
			BillAddrNum:       v.GetInt("trading.bill_addr_num"),
			ShipAddrNum:       v.GetInt("trading.ship_addr_num"),
			DeliveryTerms:     v.GetString("trading.delivery_terms"),
			CurrencyCode:      v.GetString("trading.currency_code"),
			UnitPrice:         v.GetFloat64("trading.unit_price"),
			PriceUnitCode:     v.GetString("trading.price_unit_code"),
			PriceGroupNo:      v.GetInt("trading.price_group_no"),
		},
		Scheduler: SchedulerConfig{
			RunInterval:     v.GetDuration("scheduler.run_interval"),
			MaxOrdersPerRun: v.GetInt("scheduler.max_orders_per_run"),
			CycleTimeout:    v.GetDuration("scheduler.cycle_timeout"),
			OrderTimeout:    v.GetDuration("scheduler.order_timeout"),
			MaxWorkers:      v.GetInt("scheduler.max_workers"),
		},
		Hold: HoldConfig{
			ReminderAfter:    v.GetDuration("hold.reminder_after"),
			ReminderInterval: v.GetDuration("hold.reminder_interval"),
			EscalateAfter:    v.GetDuration("hold.escalate_after"),
		},
		Retention: RetentionConfig{
			ArchiveAfterDays:   v.GetInt("retention.archive_after_days"),
			PurgeRunsAfterDays: v.GetInt("retention.purge_runs_after_days"),
		},
		Notify: NotifyConfig{
			Mode:        v.GetString("notify.mode"),
			CSREmails:   v.GetStringSlice("notify.csr_emails"),
			AdminEmails: v.GetStringSlice("notify.admin_emails"),
		},
		Lock: LockConfig{
			Backend:  v.GetString("lock.backend"),
			Host:     v.GetString("lock.host"),
			Port:     v.GetInt("lock.port"),
			Password: v.GetString("lock.password"),
			DB:       v.GetInt("lock.db"),
			LeaseTTL: v.GetDuration("lock.lease_ttl"),
		},
		Ops: OpsConfig{
			Enabled: v.GetBool("ops.enabled"),
			Port:    v.GetString("ops.port"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "lws-workflow"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.StateDB.Host == "" {
		cfg.StateDB.Host = "localhost"
	}
	if cfg.StateDB.Port == 0 {
		cfg.StateDB.Port = 5432
	}
	if cfg.StateDB.User == "" {
		cfg.StateDB.User = "postgres"
	}
	if cfg.StateDB.DBName == "" {
		cfg.StateDB.DBName = "lws_workflow"
	}
	if cfg.StateDB.SSLMode == "" {
		cfg.StateDB.SSLMode = "disable"
	}
	if cfg.StateDB.MaxOpenConns == 0 {
		cfg.StateDB.MaxOpenConns = 10
	}
	if cfg.StateDB.MaxIdleConns == 0 {
		cfg.StateDB.MaxIdleConns = 2
	}
	if cfg.StateDB.ConnMaxLifetime == 0 {
		cfg.StateDB.ConnMaxLifetime = 60
	}
	if cfg.StateDB.ConnMaxIdleTime == 0 {
		cfg.StateDB.ConnMaxIdleTime = 30
	}
	if cfg.Radius.Timeout == 0 {
		cfg.Radius.Timeout = 60 * time.Second
	}
	if cfg.Radius.RetryAttempts == 0 {
		cfg.Radius.RetryAttempts = 3
	}
	if cfg.Radius.RetryBaseDelay == 0 {
		cfg.Radius.RetryBaseDelay = 2 * time.Second
	}
	if cfg.Workflow.CompanyNum == 0 {
		cfg.Workflow.CompanyNum = 2
	}
	if cfg.Workflow.SourcePlant == "" {
		cfg.Workflow.SourcePlant = "4"
	}
	if cfg.Workflow.FulfillmentPlant == "" {
		cfg.Workflow.FulfillmentPlant = "2"
	}
	if cfg.Workflow.SourceCode == "" {
		cfg.Workflow.SourceCode = "LWS"
	}
	if cfg.Workflow.ProdGroupCode == "" {
		cfg.Workflow.ProdGroupCode = "P4-LWS"
	}
	if cfg.Workflow.ReqGroupCode == "" {
		cfg.Workflow.ReqGroupCode = "P4-FILM"
	}
	if cfg.Workflow.PurchaseItemPrefix == "" {
		cfg.Workflow.PurchaseItemPrefix = "16P4-"
	}
	if cfg.Workflow.FulfillmentItemPrefix == "" {
		cfg.Workflow.FulfillmentItemPrefix = "1600-"
	}
	if cfg.Trading.SupplierCode == "" {
		cfg.Trading.SupplierCode = "P4-00684"
	}
	if cfg.Trading.SupplierAddrNum == "" {
		cfg.Trading.SupplierAddrNum = "3086"
	}
	if cfg.Trading.SupplierWarehouse == "" {
		cfg.Trading.SupplierWarehouse = "9200"
	}
	if cfg.Trading.SupplierTerms == "" {
		cfg.Trading.SupplierTerms = "NET 30"
	}
	if cfg.Trading.CustomerCode == "" {
		cfg.Trading.CustomerCode = "POL01"
	}
	if cfg.Trading.CustomerTerms == "" {
		cfg.Trading.CustomerTerms = "NET 30"
	}
	if cfg.Trading.BillAddrNum == 0 {
		cfg.Trading.BillAddrNum = 107
	}
	if cfg.Trading.ShipAddrNum == 0 {
		cfg.Trading.ShipAddrNum = 2430
	}
	if cfg.Trading.DeliveryTerms == "" {
		cfg.Trading.DeliveryTerms = "FOB"
	}
	if cfg.Trading.CurrencyCode == "" {
		cfg.Trading.CurrencyCode = "USD"
	}
	if cfg.Trading.UnitPrice == 0 {
		cfg.Trading.UnitPrice = 0.01
	}
	if cfg.Trading.PriceUnitCode == "" {
		cfg.Trading.PriceUnitCode = "KFEET"
	}
	if cfg.Trading.PriceGroupNo == 0 {
		cfg.Trading.PriceGroupNo = 1
	}
	if cfg.Scheduler.RunInterval == 0 {
		cfg.Scheduler.RunInterval = 30 * time.Minute
	}
	if cfg.Scheduler.MaxOrdersPerRun == 0 {
		cfg.Scheduler.MaxOrdersPerRun = 200
	}
	if cfg.Scheduler.CycleTimeout == 0 {
		cfg.Scheduler.CycleTimeout = 25 * time.Minute
	}
	if cfg.Scheduler.OrderTimeout == 0 {
		cfg.Scheduler.OrderTimeout = 5 * time.Minute
	}
	if cfg.Scheduler.MaxWorkers == 0 {
		cfg.Scheduler.MaxWorkers = 1
	}
	if cfg.Hold.ReminderAfter == 0 {
		cfg.Hold.ReminderAfter = 48 * time.Hour
	}
	if cfg.Hold.ReminderInterval == 0 {
		cfg.Hold.ReminderInterval = 24 * time.Hour
	}
	if cfg.Hold.EscalateAfter == 0 {
		cfg.Hold.EscalateAfter = 120 * time.Hour
	}
	if cfg.Retention.ArchiveAfterDays == 0 {
		cfg.Retention.ArchiveAfterDays = 90
	}
	if cfg.Retention.PurgeRunsAfterDays == 0 {
		cfg.Retention.PurgeRunsAfterDays = 180
	}
	if cfg.Notify.Mode == "" {
		cfg.Notify.Mode = "log"
	}
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "memory"
	}
	if cfg.Lock.Host == "" {
		cfg.Lock.Host = "localhost"
	}
	if cfg.Lock.Port == 0 {
		cfg.Lock.Port = 6379
	}
	if cfg.Lock.LeaseTTL == 0 {
		cfg.Lock.LeaseTTL = 10 * time.Minute
	}
	if cfg.Ops.Port == "" {
		cfg.Ops.Port = "8080"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.StateDB.MaxOpenConns <= 0 {
		return fmt.Errorf("statedb.max_open_conns must be positive")
	}
	if c.StateDB.MaxIdleConns < 0 {
		return fmt.Errorf("statedb.max_idle_conns cannot be negative")
	}
	if c.StateDB.MaxIdleConns > c.StateDB.MaxOpenConns {
		return fmt.Errorf("statedb.max_idle_conns (%d) cannot exceed statedb.max_open_conns (%d)",
			c.StateDB.MaxIdleConns, c.StateDB.MaxOpenConns)
	}
	if c.Scheduler.MaxWorkers <= 0 {
		return fmt.Errorf("scheduler.max_workers must be positive")
	}
	if c.Scheduler.MaxOrdersPerRun <= 0 {
		return fmt.Errorf("scheduler.max_orders_per_run must be positive")
	}
	if c.Hold.EscalateAfter < c.Hold.ReminderAfter {
		return fmt.Errorf("hold.escalate_after cannot be shorter than hold.reminder_after")
	}
	if c.Notify.Mode != "log" && c.Notify.Mode != "outbox" {
		return fmt.Errorf("notify.mode must be \"log\" or \"outbox\", got %q", c.Notify.Mode)
	}
	if c.Lock.Backend != "memory" && c.Lock.Backend != "redis" {
		return fmt.Errorf("lock.backend must be \"memory\" or \"redis\", got %q", c.Lock.Backend)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Radius.APIURL == "" {
			return fmt.Errorf("radius.api_url is required in production")
		}
		if c.ERPDB.ReadOnlyDSN == "" || c.ERPDB.ReadWriteDSN == "" {
			return fmt.Errorf("erpdb.readonly_dsn and erpdb.readwrite_dsn are required in production")
		}
		if c.StateDB.Password == "" {
			return fmt.Errorf("statedb.password is required in production")
		}
		if c.StateDB.SSLMode == "disable" {
			return fmt.Errorf("statedb.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

// DSN returns the state database connection string with escaped values
func (d *StateDBConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisAddr returns the lock backend address in host:port form
func (l *LockConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}
