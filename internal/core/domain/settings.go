package domain

import (
	"strconv"
	"strings"
)

// Setting keys consulted by the dispatcher.
const (
	SettingMailerEnable = "mailer:enable"
	SettingPushEnable   = "tps:enable"
	SettingPushUsername = "tps:username"
	SettingPushAPIKey   = "tps:apikey"
)

// Setting is a single runtime-configurable value as stored by the admin UI.
type Setting struct {
	Name  string
	Value string
}

// PushCredentials authenticate against the third-party push service.
type PushCredentials struct {
	Username string
	APIKey   string
}

// FeatureSettings is the typed view of the settings relevant to one dispatch.
// The zero value has every channel disabled.
type FeatureSettings struct {
	MailerEnabled bool
	Push          *PushCredentials
}

// PushEnabled reports whether push forwarding is switched on and has credentials.
func (f FeatureSettings) PushEnabled() bool {
	return f.Push != nil
}

// SettingKeys returns the keys a dispatch of the given kind needs.
func SettingKeys(kind EventKind) []string {
	if !kind.HasRecipients() {
		return nil
	}
	return []string{SettingPushEnable, SettingPushUsername, SettingPushAPIKey, SettingMailerEnable}
}

// NewFeatureSettings builds FeatureSettings from raw settings. Missing keys
// resolve to disabled; push needs all three tps keys to be truthy.
func NewFeatureSettings(settings []Setting) FeatureSettings {
	values := make(map[string]string, len(settings))
	for _, s := range settings {
		if _, dup := values[s.Name]; dup {
			continue
		}
		values[s.Name] = s.Value
	}

	var fs FeatureSettings
	fs.MailerEnabled = Truthy(values[SettingMailerEnable])

	username := strings.TrimSpace(values[SettingPushUsername])
	apiKey := strings.TrimSpace(values[SettingPushAPIKey])
	if Truthy(values[SettingPushEnable]) && Truthy(username) && Truthy(apiKey) {
		fs.Push = &PushCredentials{Username: username, APIKey: apiKey}
	}
	return fs
}

// Truthy interprets a stored setting value. Booleans parse as usual, JSON
// string quotes are ignored, and any other non-empty string counts as true
// except "0", "no", "off" and "null".
func Truthy(raw string) bool {
	v := strings.TrimSpace(raw)
	v = strings.Trim(v, `"`)
	if v == "" {
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	switch strings.ToLower(v) {
	case "no", "off", "null", "undefined":
		return false
	}
	return true
}
