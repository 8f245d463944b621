package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/subculture-collective/transcript-create-sub001/internal/config"
	"github.com/subculture-collective/transcript-create-sub001/internal/potoken"
	"gopkg.in/yaml.v3"
)

// Static serves tokens from operator configuration. It holds at most one
// value per token type and ignores the request context: a manual token is
// assumed valid for any scope the operator runs it in.
type Static struct {
	tokens map[potoken.Type]string
}

// tokenFile is the YAML document format for manually supplied tokens:
//
//	tokens:
//	  player: "..."
//	  gvs: "..."
//	  subs: "..."
type tokenFile struct {
	Tokens map[string]string `yaml:"tokens"`
}

// NewStatic builds the manual provider from configuration. Environment
// values take priority; a token file, when configured, fills in the types the
// environment left empty.
func NewStatic(cfg config.TokenConfig) (*Static, error) {
	tokens := map[potoken.Type]string{
		potoken.TypePlayer: cfg.PlayerToken,
		potoken.TypeGVS:    cfg.GVSToken,
		potoken.TypeSubs:   cfg.SubsToken,
	}

	if cfg.File != "" {
		fromFile, err := loadTokenFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("could not load token file: %w", err)
		}
		for typ, value := range fromFile {
			if tokens[typ] == "" {
				tokens[typ] = value
			}
		}
	}

	configured := 0
	for _, value := range tokens {
		if value != "" {
			configured++
		}
	}
	log.Debug().Int("configured", configured).Msg("manual token provider initialized")

	return &Static{tokens: tokens}, nil
}

func loadTokenFile(path string) (map[potoken.Type]string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc tokenFile
	if err := yaml.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", path, err)
	}

	tokens := make(map[potoken.Type]string, len(doc.Tokens))
	for name, value := range doc.Tokens {
		typ, err := potoken.ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("invalid token file %s: %w", path, err)
		}
		tokens[typ] = value
	}

	return tokens, nil
}

func (s *Static) Name() string {
	return potoken.SourceManual
}

// Available is true iff at least one type has a non-empty value.
func (s *Static) Available() bool {
	for _, value := range s.tokens {
		if value != "" {
			return true
		}
	}
	return false
}

func (s *Static) Fetch(_ context.Context, typ potoken.Type, _ map[string]string) (string, error) {
	return s.tokens[typ], nil
}
