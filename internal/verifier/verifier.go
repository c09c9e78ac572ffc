package verifier

import (
	"context"
	"strings"
)

type Edition string

const (
	EditionJava    Edition = "java"
	EditionBedrock Edition = "bedrock"
)

// BedrockPrefix marks a bedrock gamertag inside free text.
const BedrockPrefix = "BE_"

func ParseEdition(s string) (Edition, bool) {
	switch Edition(strings.ToLower(strings.TrimSpace(s))) {
	case EditionJava:
		return EditionJava, true
	case EditionBedrock:
		return EditionBedrock, true
	default:
		return "", false
	}
}

// Normalize strips the bedrock prefix from handle. The prefix overrides the declared
// edition; an empty declared edition defaults to java.
func Normalize(declared Edition, handle string) (Edition, string) {
	handle = strings.TrimSpace(handle)
	if strings.HasPrefix(handle, BedrockPrefix) {
		return EditionBedrock, strings.TrimPrefix(handle, BedrockPrefix)
	}
	if declared == "" {
		declared = EditionJava
	}
	return declared, handle
}

// Verifier reports whether an identity exists. Transport failures report false.
type Verifier interface {
	Exists(ctx context.Context, edition Edition, handle string) bool
}
