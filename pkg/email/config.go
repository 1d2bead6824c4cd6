package email

// Config selects and configures the outbound email sender.
// Postmark tokens are only required when Driver is "postmark".
type Config struct {
	Driver               string  `env:"EMAIL_DRIVER" envDefault:"dev"` // postmark | dev
	PostmarkServerToken  string  `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string  `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string  `env:"SENDER_EMAIL" envDefault:"noreply@example.com"`
	SupportEmail         string  `env:"SUPPORT_EMAIL" envDefault:"support@example.com"`
	DevDir               string  `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
	RatePerSecond        float64 `env:"EMAIL_RATE_PER_SECOND" envDefault:"0"` // 0 disables limiting
	Burst                int     `env:"EMAIL_RATE_BURST" envDefault:"1"`
}

const (
	DriverPostmark = "postmark"
	DriverDev      = "dev"
)
