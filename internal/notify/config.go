package notify

// WebhookConfig defines a webhook destination for approval prompts.
type WebhookConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack"
	Headers map[string]string `yaml:"headers" json:"headers"`
}
