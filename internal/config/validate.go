// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/jeranaias/rigrun-launcher/internal/surface"
)

// =============================================================================
// VALIDATION
// =============================================================================

var engineName = regexp.MustCompile(`^[a-z0-9][a-z0-9 _.-]*$`)

// LogLevels lists the accepted log_level values.
var LogLevels = []any{"debug", "info", "warn", "error"}

// Validate checks every section. The returned error is a
// validation.Errors keyed by section name.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.Required, validation.In(LogLevels...)),
		validation.Field(&c.Search),
		validation.Field(&c.Runtime),
		validation.Field(&c.Window),
		validation.Field(&c.Server),
		validation.Field(&c.UI),
	)
}

// Validate implements validation.Validatable.
func (s SearchConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.URL, validation.Required, is.URL),
		validation.Field(&s.DefaultEngines,
			validation.Required,
			validation.Each(validation.Required, validation.Match(engineName)),
		),
		validation.Field(&s.SearchTimeout, validation.Min(Duration(100*time.Millisecond))),
		validation.Field(&s.ConfigTimeout, validation.Min(Duration(100*time.Millisecond))),
	)
}

// Validate implements validation.Validatable.
func (r RuntimeConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Provider, validation.Required, validation.In(ProviderOllama, ProviderOpenAI)),
		validation.Field(&r.URL, validation.Required, is.URL),
		validation.Field(&r.DefaultModel, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.InitTimeout, validation.Min(Duration(100*time.Millisecond))),
		validation.Field(&r.StreamIdleTimeout, validation.Min(Duration(time.Second))),
	)
}

// Validate implements validation.Validatable.
func (w WindowConfig) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.Width, validation.Min(80), validation.Max(4096)),
		validation.Field(&w.Height, validation.Min(80), validation.Max(4096)),
		validation.Field(&w.VerticalOffset, validation.Min(0), validation.Max(4096)),
		validation.Field(&w.Hotkey, validation.Required, validation.By(validHotkey)),
	)
}

func validHotkey(value any) error {
	s, _ := value.(string)
	_, err := surface.ParseHotkey(s)
	return err
}

// Validate implements validation.Validatable.
func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Min(1), validation.Max(65535)),
		validation.Field(&s.AllowedOrigins, validation.Each(validation.By(validOrigin))),
		validation.Field(&s.RateLimit, validation.Min(0.1)),
	)
}

func validOrigin(value any) error {
	s, _ := value.(string)
	if s == "*" {
		return nil
	}
	return is.URL.Validate(s)
}

// Validate implements validation.Validatable.
func (u UIConfig) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Theme, validation.In("dark", "light", "auto")),
	)
}
