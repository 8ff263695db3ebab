package config

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"JWT_SECRET"`

	AlfaBank AlfaBank `envPrefix:"ALFABANK_"`
	Mailer   Mailer   `envPrefix:"MAILER_"`
	Sweep    Sweep    `envPrefix:"SWEEP_"`
}

type AlfaBank struct {
	APIURL    string `env:"API_URL" envDefault:"https://payment.alfabank.ru/payment/rest"`
	Username  string `env:"USERNAME"`
	Password  string `env:"PASSWORD"`
	ReturnURL string `env:"RETURN_URL"`
	FailURL   string `env:"FAIL_URL"`
}

type Mailer struct {
	BaseURL string `env:"BASE_URL"`
	APIKey  string `env:"API_KEY"`
	From    string `env:"FROM" envDefault:"noreply@localhost"`
}

// Sweep holds cron specs (with a seconds field) for the background
// reconciliation jobs.
type Sweep struct {
	GrantGapSpec     string `env:"GRANT_GAP_CRON" envDefault:"0 */5 * * * *"`
	StalePendingSpec string `env:"STALE_PENDING_CRON" envDefault:"0 0 * * * *"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
