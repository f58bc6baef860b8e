package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// secretRefPattern matches ${ENV:NAME} and ${FILE:/path} placeholders. The
// pattern captures the kind and the reference as separate groups.
var secretRefPattern = regexp.MustCompile(`\$\{(ENV|FILE):([^}]+)\}`)

// ResolveSecrets replaces ${ENV:NAME} and ${FILE:/path} references in the
// secret-bearing fields of c: the Mongo credentials, the Slack webhook URL,
// the webhook URL, and the webhook header values. A value may mix literal
// text and references. If any reference cannot be resolved, an error is
// returned and c is left unchanged.
func (c *Config) ResolveSecrets() error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"store.mongo.host", &c.Store.Mongo.Host},
		{"store.mongo.username", &c.Store.Mongo.Username},
		{"store.mongo.password", &c.Store.Mongo.Password},
		{"sinks.slack.webhookURL", &c.Sinks.Slack.WebhookURL},
		{"sinks.webhook.url", &c.Sinks.Webhook.URL},
	}

	resolved := make([]string, len(fields))
	for i, f := range fields {
		v, err := resolveSecretValue(*f.ptr)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", f.name, err)
		}
		resolved[i] = v
	}

	var headers map[string]string
	if c.Sinks.Webhook.Headers != nil {
		headers = make(map[string]string, len(c.Sinks.Webhook.Headers))
		for k, v := range c.Sinks.Webhook.Headers {
			rv, err := resolveSecretValue(v)
			if err != nil {
				return fmt.Errorf("resolving sinks.webhook.headers[%s]: %w", k, err)
			}
			headers[k] = rv
		}
	}

	for i, f := range fields {
		*f.ptr = resolved[i]
	}
	c.Sinks.Webhook.Headers = headers
	return nil
}

// resolveSecretValue replaces all references in a single value.
func resolveSecretValue(value string) (string, error) {
	if !strings.Contains(value, "${") {
		return value, nil
	}

	var resolveErr error
	result := secretRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		if resolveErr != nil {
			return match
		}
		parts := secretRefPattern.FindStringSubmatch(match)
		kind, ref := parts[1], parts[2]

		switch kind {
		case "ENV":
			v, ok := os.LookupEnv(ref)
			if !ok {
				resolveErr = fmt.Errorf("environment variable %s is not set", ref)
				return match
			}
			return v
		default:
			data, err := os.ReadFile(ref)
			if err != nil {
				resolveErr = fmt.Errorf("reading secret file: %w", err)
				return match
			}
			return strings.TrimRight(string(data), "\r\n")
		}
	})

	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}
