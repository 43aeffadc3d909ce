package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		BaseURL            string   `yaml:"base_url"` // issuer público del broker
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		Driver string `yaml:"driver"` // memory | postgres
		DSN    string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Issuer struct {
		KeysDir          string `yaml:"keys_dir"`
		AccessTTL        string `yaml:"access_ttl"`         // default 15m
		IDTTL            string `yaml:"id_ttl"`             // default 15m
		RefreshTTL       string `yaml:"refresh_ttl"`        // default 720h
		RefreshFamilyMax string `yaml:"refresh_family_max"` // default 2160h
		CodeTTL          string `yaml:"code_ttl"`           // default 10m, techo duro
	} `yaml:"issuer"`

	Session struct {
		CookieName  string `yaml:"cookie_name"`
		Domain      string `yaml:"domain"`
		SameSite    string `yaml:"samesite"`
		Secure      bool   `yaml:"secure"`
		TTL         string `yaml:"ttl"`          // default 720h
		IdleTimeout string `yaml:"idle_timeout"` // 0 = sin idle timeout
	} `yaml:"session"`

	Consent struct {
		// Merge define la política de re-grant: union | replace.
		Merge string `yaml:"merge"`
	} `yaml:"consent"`

	Login struct {
		// UIBaseURL es la base del front-end de login/consent (colaborador externo).
		UIBaseURL string `yaml:"ui_base_url"`
	} `yaml:"login"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Token   struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"token"`
		Authorize struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"authorize"`
	} `yaml:"rate"`

	Admin struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"admin"`

	// Backends externos, resueltos al startup (dispatch por nombre).
	Backends []BackendConfig `yaml:"backends"`
}

// BackendConfig describe un backend de autenticación upstream.
type BackendConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // oidc | static

	// kind: oidc
	IssuerURL    string   `yaml:"issuer_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`

	// kind: static (solo dev/test)
	Subject string         `yaml:"subject"`
	Email   string         `yaml:"email"`
	Claims  map[string]any `yaml:"claims"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnv permite overrides puntuales via entorno (secrets fuera del YAML).
func (c *Config) applyEnv() {
	if v := os.Getenv("JANUS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("JANUS_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("JANUS_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("JANUS_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("JANUS_ADMIN_API_KEY"); v != "" {
		c.Admin.APIKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "janus_session"
	}
	if c.Consent.Merge == "" {
		c.Consent.Merge = "union"
	}
	if c.Login.UIBaseURL == "" {
		c.Login.UIBaseURL = c.Server.BaseURL
	}
	if c.Issuer.KeysDir == "" {
		c.Issuer.KeysDir = "./data/keys"
	}
}

func (c *Config) validate() error {
	if c.Consent.Merge != "union" && c.Consent.Merge != "replace" {
		return fmt.Errorf("config: consent.merge must be union|replace, got %q", c.Consent.Merge)
	}
	seen := map[string]struct{}{}
	for _, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("config: backend without name")
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("config: duplicate backend %q", b.Name)
		}
		seen[b.Name] = struct{}{}
		switch b.Kind {
		case "oidc":
			if b.IssuerURL == "" || b.ClientID == "" {
				return fmt.Errorf("config: backend %q needs issuer_url and client_id", b.Name)
			}
		case "static":
			if b.Subject == "" {
				return fmt.Errorf("config: backend %q needs subject", b.Name)
			}
		default:
			return fmt.Errorf("config: backend %q has unknown kind %q", b.Name, b.Kind)
		}
	}
	return nil
}

// ParseD parsea una duración con default. Acepta "" como default.
func ParseD(s string, def time.Duration) time.Duration {
	if strings.TrimSpace(s) == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// SessionSameSite mapea el valor configurado al modo de cookie.
// Valores no reconocidos caen en Lax.
func (c *Config) SessionSameSite() http.SameSite {
	switch strings.ToLower(strings.TrimSpace(c.Session.SameSite)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// CodeTTL devuelve el TTL de authorization codes, con techo de 10 minutos.
func (c *Config) CodeTTL() time.Duration {
	d := ParseD(c.Issuer.CodeTTL, 10*time.Minute)
	if d > 10*time.Minute {
		d = 10 * time.Minute
	}
	return d
}
