package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

type Config struct {
	Redis   RedisConfig
	Chain   ChainConfig
	Policy  PolicyConfig
	Minter  MinterConfig
	Settler SettlerConfig
	Server  ServerConfig
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// ChainConfig identifies the contract deployment vouchers are bound to.
type ChainConfig struct {
	ChainID         int64  `mapstructure:"chain_id"`
	ContractAddress string `mapstructure:"contract_address"`
}

type PolicyConfig struct {
	AuthorizedSigners string `mapstructure:"authorized_signers"` // comma-separated addresses
}

type MinterConfig struct {
	PrivateKey       string `mapstructure:"private_key"`
	KeystorePath     string `mapstructure:"keystore_path"`
	KeystorePassword string `mapstructure:"keystore_password"`
	Mnemonic         string `mapstructure:"mnemonic"`
	AccountIndex     uint32 `mapstructure:"account_index"`
}

type SettlerConfig struct {
	Enabled         bool  `mapstructure:"enabled"`
	BlockTimeoutSec int64 `mapstructure:"block_timeout_sec"`
}

type ServerConfig struct {
	Port       int  `mapstructure:"port"`
	DevFunding bool `mapstructure:"dev_funding"`
}

// Load reads the redemption service configuration.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

// LoadMinter reads only what the voucher-signing CLI needs.
func LoadMinter() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	return cfg, cfg.validateChain()
}

func load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.dev_funding", false)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("settler.enabled", true)
	v.SetDefault("settler.block_timeout_sec", 5)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"redis.addr":                "REDIS_ADDR",
		"redis.password":            "REDIS_PASSWORD",
		"chain.chain_id":            "CHAIN_ID",
		"chain.contract_address":    "LAZYNFT_CONTRACT",
		"policy.authorized_signers": "AUTHORIZED_SIGNERS",
		"minter.private_key":        "MINTER_PRIVATE_KEY",
		"minter.keystore_path":      "MINTER_KEYSTORE",
		"minter.keystore_password":  "MINTER_KEYSTORE_PASSWORD",
		"minter.mnemonic":           "MINTER_MNEMONIC",
		"minter.account_index":      "MINTER_ACCOUNT_INDEX",
		"settler.enabled":           "SETTLER_ENABLED",
		"settler.block_timeout_sec": "SETTLER_BLOCK_TIMEOUT_SEC",
		"server.port":               "PORT",
		"server.dev_funding":        "DEV_FUNDING",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Signers parses the authorized signer list.
func (p PolicyConfig) Signers() ([]common.Address, error) {
	var out []common.Address
	for _, s := range strings.Split(p.AuthorizedSigners, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid signer address %q", s)
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, nil
}

func (c *Config) validateChain() error {
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}
	if !common.IsHexAddress(c.Chain.ContractAddress) {
		return fmt.Errorf("required config missing or invalid: LAZYNFT_CONTRACT")
	}
	return nil
}

func (c *Config) validate() error {
	if err := c.validateChain(); err != nil {
		return err
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("required config missing: REDIS_ADDR")
	}
	signers, err := c.Policy.Signers()
	if err != nil {
		return fmt.Errorf("AUTHORIZED_SIGNERS: %w", err)
	}
	if len(signers) == 0 {
		return fmt.Errorf("required config missing: AUTHORIZED_SIGNERS")
	}
	if c.Settler.BlockTimeoutSec <= 0 {
		return fmt.Errorf("SETTLER_BLOCK_TIMEOUT_SEC must be positive")
	}
	return nil
}
