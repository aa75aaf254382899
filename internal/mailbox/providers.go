package mailbox

import "github.com/nhle/nefwatch/internal/model"

// Provider holds IMAP settings for a known email provider.
type Provider struct {
	Server string
	Port   int

	// HelpURL points at the provider's app-password documentation; it is
	// included in auth-failure remediation hints.
	HelpURL string
}

// providers are the built-in presets. All of them require an app
// password rather than the account password.
var providers = map[string]Provider{
	"gmail": {
		Server:  "imap.gmail.com",
		Port:    993,
		HelpURL: "https://myaccount.google.com/apppasswords",
	},
	"outlook": {
		Server:  "outlook.office365.com",
		Port:    993,
		HelpURL: "https://support.microsoft.com/en-us/account-billing/app-passwords",
	},
	"yahoo": {
		Server:  "imap.mail.yahoo.com",
		Port:    993,
		HelpURL: "https://help.yahoo.com/kb/generate-third-party-passwords-sln15241.html",
	},
	"icloud": {
		Server:  "imap.mail.me.com",
		Port:    993,
		HelpURL: "https://support.apple.com/en-us/HT204397",
	},
}

// ResolveProvider returns the IMAP settings for the configured provider.
// "custom" uses the explicit server/port from the configuration; an
// unknown provider name falls back to the gmail preset.
func ResolveProvider(cfg *model.Config) Provider {
	if cfg.EmailProvider == "custom" {
		port := cfg.IMAPPort
		if port == 0 {
			port = 993
		}
		return Provider{Server: cfg.IMAPServer, Port: port}
	}

	if p, ok := providers[cfg.EmailProvider]; ok {
		return p
	}
	return providers["gmail"]
}
