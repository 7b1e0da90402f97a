package scraper

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const defaultLoginURL = "https://newplatform.mygamevnl.com/#/DailyChanneStatistics"

// Selectors holds the locator candidates for each UI element, tried in
// order. The statistics frontend renders either a classic antd table or a
// virtualized row-group, and its markup shifts between releases; selector
// lists keep those shifts a configuration change instead of a code change.
type Selectors struct {
	Username       []string `envconfig:"SELECTOR_USERNAME"`
	Password       []string `envconfig:"SELECTOR_PASSWORD"`
	TOTP           []string `envconfig:"SELECTOR_TOTP"`
	Submit         []string `envconfig:"SELECTOR_SUBMIT"`
	TableContainer []string `envconfig:"SELECTOR_TABLE_CONTAINER"`
	TableRows      []string `envconfig:"SELECTOR_TABLE_ROWS"`
	TableHeaders   []string `envconfig:"SELECTOR_TABLE_HEADERS"`
}

func defaultSelectors() Selectors {
	return Selectors{
		Username: []string{
			`input[name='username']`,
			`input[placeholder*='账号']`,
			`input[placeholder*='账户']`,
			`form input[type='text']`,
		},
		Password: []string{
			`input[name='password']`,
			`input[type='password']`,
			`input[placeholder*='密码']`,
		},
		TOTP: []string{
			`input[name='googleCode']`,
			`input[placeholder*='验证码']`,
			`//input[contains(@placeholder, '验证码')]`,
		},
		Submit: []string{
			`button[type='submit']`,
			`//button[contains(., '登录')]`,
			`//button[contains(., 'Log in')]`,
		},
		TableContainer: []string{
			`.ant-table-body`,
			`div[role='rowgroup']`,
		},
		TableRows: []string{
			`.ant-table-body table tbody tr`,
			`div[role='rowgroup'] div[role='row']`,
		},
		TableHeaders: []string{
			`.ant-table-body table thead th`,
			`table thead th`,
		},
	}
}

// fillDefaults keeps the shipped candidates for any list the environment
// left empty.
func (s *Selectors) fillDefaults() {
	def := defaultSelectors()
	fill := func(dst *[]string, src []string) {
		if len(*dst) == 0 {
			*dst = src
		}
	}
	fill(&s.Username, def.Username)
	fill(&s.Password, def.Password)
	fill(&s.TOTP, def.TOTP)
	fill(&s.Submit, def.Submit)
	fill(&s.TableContainer, def.TableContainer)
	fill(&s.TableRows, def.TableRows)
	fill(&s.TableHeaders, def.TableHeaders)
}

// Config drives one collection run against the statistics site. Credentials
// come from the environment only; nothing here persists to disk.
type Config struct {
	LoginURL   string `envconfig:"LOGIN_URL" default:"https://newplatform.mygamevnl.com/#/DailyChanneStatistics"`
	Username   string `envconfig:"USERNAME" validate:"required"`
	Password   string `envconfig:"PASSWORD" validate:"required"`
	TOTPSecret string `envconfig:"TOTP_SECRET"`
	SaveDir    string `envconfig:"SAVE_DIR" default:"downloads"`
	Headless   bool   `envconfig:"HEADLESS" default:"true"`
	// Processed separately so the override names stay flat
	// (NEWPLATFORM_SELECTOR_USERNAME, not NEWPLATFORM_SELECTORS_...).
	Selectors Selectors `ignored:"true"`
}

// LoadConfig reads the NEWPLATFORM_* environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("NEWPLATFORM", cfg); err != nil {
		return nil, fmt.Errorf("failed to load scraper config from env: %w", err)
	}
	if err := envconfig.Process("NEWPLATFORM", &cfg.Selectors); err != nil {
		return nil, fmt.Errorf("failed to load selector overrides from env: %w", err)
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLoginURL
	}
	cfg.Selectors.fillDefaults()
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("scraper config validation failed: %w", err)
	}
	return cfg, nil
}

// isXPath reports whether a selector candidate is an XPath expression
// rather than a CSS selector.
func isXPath(sel string) bool {
	return strings.HasPrefix(sel, "//")
}
