// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import "regexp"

// Tokens and codes show up in the URLs that the identity provider bounces us
// through, and those URLs get logged on every poll. Mask anything that looks
// like a credential before it reaches the test log.
var maskPatterns = []*regexp.Regexp{ //nolint:gochecknoglobals
	regexp.MustCompile(`(?i)(code|state|nonce|id_token|access_token|client-request-id|sso_reload)=[^&\s"]+`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{20,}\.[a-zA-Z0-9._-]+`), // JWTs
}

var maskedParamName = regexp.MustCompile(`^[a-zA-Z_-]+=`) //nolint:gochecknoglobals

// MaskTokens replaces anything which looks like a secret in s with a placeholder
// so that values can be safely logged.
func MaskTokens(s string) string {
	for _, re := range maskPatterns {
		s = re.ReplaceAllStringFunc(s, func(match string) string {
			if name := maskedParamName.FindString(match); name != "" {
				return name + "redacted"
			}
			return "redacted"
		})
	}
	return s
}
