package config

// NewLoggerForTest creates a Logger with the given settings
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

// NewNotifyForTest creates a Notify with SMTP and SMS settings
func NewNotifyForTest(baseURL, smtpAddr, smtpFrom, smsEndpoint string) *Notify {
	return &Notify{
		baseURL:     baseURL,
		smtpAddr:    smtpAddr,
		smtpFrom:    smtpFrom,
		smsEndpoint: smsEndpoint,
	}
}

// NewRepositoryForTest creates a Repository for the given backend
func NewRepositoryForTest(backend string) *Repository {
	return &Repository{backend: backend}
}

// NewAppConfigForTest creates an AppConfig reading path
func NewAppConfigForTest(path string) *AppConfig {
	return &AppConfig{path: path}
}

// NewSlackForTest creates a Slack config
func NewSlackForTest(botToken, signingSecret string) *Slack {
	return &Slack{botToken: botToken, signingSecret: signingSecret}
}

// NewHandlerForTest exposes handler construction without replacing the default logger
func (x *Logger) NewHandlerForTest() error {
	_, closer, err := x.newHandler()
	if closer != nil {
		closer()
	}
	return err
}
