/*
Copyright 2025 Magmad Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/hodlmetight/magmad/model"
)

const (
	DEFAULT_PORT = "5101"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"MAGMAD_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"MAGMAD_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"MAGMAD_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"MAGMAD_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"MAGMAD_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"MAGMAD_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"MAGMAD_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"MAGMAD_REDIS_DNS"`
}

// MarketplaceConfig points at the Amboss Magma GraphQL API.
type MarketplaceConfig struct {
	Url   string `json:"url" envconfig:"MAGMAD_MARKETPLACE_URL"`
	Token string `json:"token" envconfig:"MAGMAD_MARKETPLACE_TOKEN"`
}

// NodeConfig points at the LND REST API of the operator's node.
type NodeConfig struct {
	RestUrl       string `json:"rest_url" envconfig:"MAGMAD_NODE_REST_URL"`
	MacaroonHex   string `json:"macaroon_hex" envconfig:"MAGMAD_NODE_MACAROON_HEX"`
	TLSSkipVerify bool   `json:"tls_skip_verify" envconfig:"MAGMAD_NODE_TLS_SKIP_VERIFY"`
	MinConfs      int32  `json:"min_confs" envconfig:"MAGMAD_NODE_MIN_CONFS"`
}

// DashboardConfig points at the LNDg dashboard API used for outcome notes.
type DashboardConfig struct {
	Url      string `json:"url" envconfig:"MAGMAD_DASHBOARD_URL"`
	Username string `json:"username" envconfig:"MAGMAD_DASHBOARD_USERNAME"`
	Password string `json:"password" envconfig:"MAGMAD_DASHBOARD_PASSWORD"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token" envconfig:"MAGMAD_TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `json:"chat_id" envconfig:"MAGMAD_TELEGRAM_CHAT_ID"`
	ApiUrl   string `json:"api_url" envconfig:"MAGMAD_TELEGRAM_API_URL"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"MAGMAD_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"MAGMAD_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"MAGMAD_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type QueueConfig struct {
	InvoiceExpiryQueue string `json:"invoice_expiry_queue" envconfig:"MAGMAD_QUEUE_INVOICE_EXPIRY"`
	MonitoringPort     string `json:"monitoring_port" envconfig:"MAGMAD_QUEUE_MONITORING_PORT"`
}

// PipelineConfig carries the economic limits and the pacing knobs of the order
// pipeline. All values are read at startup and static for the process lifetime.
type PipelineConfig struct {
	PollingIntervalMinutes     int      `json:"polling_interval_minutes" envconfig:"MAGMAD_POLLING_INTERVAL_MINUTES"`
	InvoiceExpirySeconds       int64    `json:"invoice_expiry_seconds" envconfig:"MAGMAD_INVOICE_EXPIRY_SECONDS"`
	MaxFeePercentageOfInvoice  float64  `json:"max_fee_percentage_of_invoice" envconfig:"MAGMAD_MAX_FEE_PERCENTAGE_OF_INVOICE"`
	ChannelFeeRatePPM          int64    `json:"channel_fee_rate_ppm" envconfig:"MAGMAD_CHANNEL_FEE_RATE_PPM"`
	ConnectRetryDelaySeconds   int64    `json:"connect_retry_delay_seconds" envconfig:"MAGMAD_CONNECT_RETRY_DELAY_SECONDS"`
	MaxConnectRetries          int      `json:"max_connect_retries" envconfig:"MAGMAD_MAX_CONNECT_RETRIES"`
	ApprovalRequired           bool     `json:"approval_required" envconfig:"MAGMAD_APPROVAL_REQUIRED"`
	ApprovalTimeoutSeconds     int64    `json:"approval_timeout_seconds" envconfig:"MAGMAD_APPROVAL_TIMEOUT_SECONDS"`
	PaymentPollIntervalSeconds int64    `json:"payment_poll_interval_seconds" envconfig:"MAGMAD_PAYMENT_POLL_INTERVAL_SECONDS"`
	PaymentPollWindowMinutes   int      `json:"payment_poll_window_minutes" envconfig:"MAGMAD_PAYMENT_POLL_WINDOW_MINUTES"`
	ChannelPointWaitSeconds    int64    `json:"channel_point_wait_seconds" envconfig:"MAGMAD_CHANNEL_POINT_WAIT_SECONDS"`
	MempoolFeesApi             string   `json:"mempool_fees_api" envconfig:"MAGMAD_MEMPOOL_FEES_API"`
	BannedPubkeys              []string `json:"banned_pubkeys" envconfig:"MAGMAD_BANNED_PUBKEYS"`
}

type Configuration struct {
	ProjectName  string            `json:"project_name" envconfig:"MAGMAD_PROJECT_NAME"`
	Server       ServerConfig      `json:"server"`
	DataSource   DataSourceConfig  `json:"data_source"`
	Redis        RedisConfig       `json:"redis"`
	Marketplace  MarketplaceConfig `json:"marketplace"`
	Node         NodeConfig        `json:"node"`
	Dashboard    DashboardConfig   `json:"dashboard"`
	Telegram     TelegramConfig    `json:"telegram"`
	Notification Notification      `json:"notification"`
	RateLimit    RateLimitConfig   `json:"rate_limit"`
	Queue        QueueConfig       `json:"queue"`
	Pipeline     PipelineConfig    `json:"pipeline"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("magmad", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called magmad.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Magmad"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Marketplace.Url = strings.TrimSpace(cnf.Marketplace.Url)
	cnf.Node.RestUrl = strings.TrimSpace(cnf.Node.RestUrl)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Marketplace.Url == "" {
		cnf.Marketplace.Url = "https://api.amboss.space/graphql"
	}

	if cnf.Telegram.ApiUrl == "" {
		cnf.Telegram.ApiUrl = "https://api.telegram.org"
	}

	if cnf.Queue.InvoiceExpiryQueue == "" {
		cnf.Queue.InvoiceExpiryQueue = "magmad_invoice_expiry"
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5102"
	}

	if cnf.Node.MinConfs == 0 {
		cnf.Node.MinConfs = 3
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	cnf.Pipeline.addDefaults()

	return cnf.Pipeline.validate()
}

func (p *PipelineConfig) addDefaults() {
	if p.PollingIntervalMinutes == 0 {
		p.PollingIntervalMinutes = 10
	}
	if p.InvoiceExpirySeconds == 0 {
		p.InvoiceExpirySeconds = 180000
	}
	if p.MaxFeePercentageOfInvoice == 0 {
		p.MaxFeePercentageOfInvoice = 0.90
	}
	if p.ChannelFeeRatePPM == 0 {
		p.ChannelFeeRatePPM = 350
	}
	if p.ConnectRetryDelaySeconds == 0 {
		p.ConnectRetryDelaySeconds = 60
	}
	if p.MaxConnectRetries == 0 {
		p.MaxConnectRetries = 30
	}
	if p.ApprovalTimeoutSeconds == 0 {
		p.ApprovalTimeoutSeconds = 300
	}
	if p.PaymentPollIntervalSeconds == 0 {
		p.PaymentPollIntervalSeconds = 30
	}
	if p.PaymentPollWindowMinutes == 0 {
		p.PaymentPollWindowMinutes = 15
	}
	if p.ChannelPointWaitSeconds == 0 {
		p.ChannelPointWaitSeconds = 300
	}
	if p.MempoolFeesApi == "" {
		p.MempoolFeesApi = "https://mempool.space/api/v1/fees/recommended"
	}
}

func (p *PipelineConfig) validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.MaxFeePercentageOfInvoice, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.ChannelFeeRatePPM, validation.Min(int64(0))),
		validation.Field(&p.InvoiceExpirySeconds, validation.Min(int64(1))),
		validation.Field(&p.ConnectRetryDelaySeconds, validation.Min(int64(1))),
		validation.Field(&p.MaxConnectRetries, validation.Min(1)),
		validation.Field(&p.PollingIntervalMinutes, validation.Min(1)),
	)
}

// EconomicLimits returns the read-only view the validation engine and the
// pipeline stages work against.
func (p *PipelineConfig) EconomicLimits() model.EconomicLimits {
	return model.EconomicLimits{
		MaxFeePercentageOfInvoice: p.MaxFeePercentageOfInvoice,
		ChannelFeeRatePPM:         p.ChannelFeeRatePPM,
		InvoiceExpirySeconds:      p.InvoiceExpirySeconds,
		ConnectRetryDelaySeconds:  p.ConnectRetryDelaySeconds,
		MaxConnectRetries:         p.MaxConnectRetries,
		PollingIntervalMinutes:    p.PollingIntervalMinutes,
	}
}

// InvoiceExpiry returns the configured invoice lifetime as a duration.
func (p *PipelineConfig) InvoiceExpiry() time.Duration {
	return time.Duration(p.InvoiceExpirySeconds) * time.Second
}

// IsBannedPubkey reports whether a buyer pubkey is on the auto-reject list.
func (p *PipelineConfig) IsBannedPubkey(pubkey string) bool {
	for _, banned := range p.BannedPubkeys {
		if strings.EqualFold(strings.TrimSpace(banned), pubkey) {
			return true
		}
	}
	return false
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.Pipeline.addDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
