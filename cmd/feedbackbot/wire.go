package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-bot/internal/archive"
	"github.com/tbourn/go-feedback-bot/internal/classify"
	"github.com/tbourn/go-feedback-bot/internal/config"
	"github.com/tbourn/go-feedback-bot/internal/escalate"
	"github.com/tbourn/go-feedback-bot/internal/keylock"
	"github.com/tbourn/go-feedback-bot/internal/repo"
	"github.com/tbourn/go-feedback-bot/internal/services"
)

// openDB connects to the configured database and applies the schema.
func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(repo.Options{
		Driver:  cfg.DB.Driver,
		Path:    cfg.DB.Path,
		URL:     cfg.DB.URL,
		Tracing: cfg.OTEL.Enabled,
		Silent:  cfg.GinMode == "release",
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// buildConversation assembles the state machine and the feedback pipeline
// with whichever collaborators are configured.
func buildConversation(ctx context.Context, cfg config.Config, db *gorm.DB) (*services.ConversationService, error) {
	roles, err := config.LoadRoles(cfg.RolesFile)
	if err != nil {
		return nil, err
	}
	classifier, err := buildClassifier(ctx, cfg.Classifier)
	if err != nil {
		return nil, err
	}
	archiver, err := buildArchiver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	escalator, err := buildEscalator(cfg)
	if err != nil {
		return nil, err
	}

	pipeline := &services.FeedbackPipeline{
		DB:                  db,
		Classifier:          classifier,
		Archiver:            archiver,
		Escalator:           escalator,
		Roles:               roles,
		EscalationThreshold: cfg.Escalate.Threshold,
		ClassifyTimeout:     cfg.Classifier.Timeout,
		ArchiveTimeout:      cfg.Archive.Timeout,
		EscalateTimeout:     cfg.Escalate.Timeout,
	}
	return &services.ConversationService{
		DB:           db,
		Pipeline:     pipeline,
		Roles:        roles,
		StartCommand: cfg.StartCommand,
		Locks:        keylock.New(),
	}, nil
}

func buildClassifier(ctx context.Context, cfg config.ClassifierConfig) (classify.Classifier, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY not set; feedback gets the default verdict")
			return classify.Disabled{}, nil
		}
		return classify.NewOpenAI(classify.OpenAIConfig{
			APIKey:      cfg.OpenAIKey,
			BaseURL:     cfg.OpenAIURL,
			Model:       cfg.OpenAIModel,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			MaxRunes:    cfg.MaxRunes,
			Timeout:     cfg.Timeout,
		}), nil
	case "gemini":
		if cfg.GeminiKey == "" {
			log.Warn().Msg("GEMINI_API_KEY not set; feedback gets the default verdict")
			return classify.Disabled{}, nil
		}
		g, err := classify.NewGemini(ctx, classify.GeminiConfig{
			APIKey:   cfg.GeminiKey,
			Model:    cfg.GeminiModel,
			MaxRunes: cfg.MaxRunes,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return classify.Disabled{}, nil
	}
}

func buildArchiver(ctx context.Context, cfg config.Config) (archive.Archiver, error) {
	if !cfg.ArchiveEnabled() {
		log.Info().Msg("archive disabled: GOOGLE_DOCS_DOCUMENT_ID not set")
		return archive.Noop{}, nil
	}
	var opts []option.ClientOption
	if cfg.Archive.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Archive.CredentialsFile))
	}
	g, err := archive.NewGoogleDocs(ctx, cfg.Archive.DocumentID, opts...)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func buildEscalator(cfg config.Config) (escalate.Escalator, error) {
	if !cfg.EscalateEnabled() {
		log.Info().Msg("escalation disabled: Trello credentials not set")
		return escalate.Noop{}, nil
	}
	t, err := escalate.NewTrello(escalate.TrelloConfig{
		APIKey:  cfg.Escalate.TrelloKey,
		Token:   cfg.Escalate.TrelloToken,
		ListID:  cfg.Escalate.TrelloList,
		BaseURL: cfg.Escalate.TrelloURL,
		Timeout: cfg.Escalate.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
