package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-bot/internal/config"
	httpapi "github.com/tbourn/go-feedback-bot/internal/http"
	"github.com/tbourn/go-feedback-bot/internal/observability"
	"github.com/tbourn/go-feedback-bot/internal/repo"
	"github.com/tbourn/go-feedback-bot/internal/services"
	"github.com/tbourn/go-feedback-bot/internal/transport"
	amqptransport "github.com/tbourn/go-feedback-bot/internal/transport/amqp"
	"github.com/tbourn/go-feedback-bot/internal/transport/telegram"
)

const receiptPurgeInterval = time.Hour

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the enabled chat transports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version,
		observability.TransportsKey.StringSlice(transportNames(cfg)))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	conv, err := buildConversation(ctx, cfg, db)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, conv, cfg)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	// Transports connect before the server starts listening.
	var runners []func(context.Context) error
	if cfg.Telegram.Enabled {
		bot, err := telegram.Dial(cfg.Telegram.Token)
		if err != nil {
			return err
		}
		tg := telegram.New(bot, transport.ForConversation(conv), telegram.Options{
			PollTimeout: cfg.Telegram.PollTimeout,
			Workers:     cfg.TransportWorkers,
		})
		runners = append(runners, tg.Run)
	}
	if cfg.AMQP.Enabled {
		run, err := dialAMQP(cfg, conv)
		if err != nil {
			return err
		}
		runners = append(runners, run)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		purgeReceipts(gctx, db, receiptPurgeInterval)
		return nil
	})
	for _, run := range runners {
		g.Go(func() error { return run(gctx) })
	}

	err = g.Wait()
	log.Info().Msg("stopped")
	return err
}

// transportNames lists the chat transports cfg enables. HTTP is always on.
func transportNames(cfg config.Config) []string {
	names := []string{"http", "websocket"}
	if cfg.Telegram.Enabled {
		names = append(names, "telegram")
	}
	if cfg.AMQP.Enabled {
		names = append(names, "amqp")
	}
	return names
}

// dialAMQP connects to the broker and returns the consumer loop. The loop
// closes the connection when it returns.
func dialAMQP(cfg config.Config, conv *services.ConversationService) (func(context.Context) error, error) {
	conn, ch, err := amqptransport.Dial(cfg.AMQP.URL)
	if err != nil {
		return nil, err
	}
	mq := amqptransport.New(ch, transport.ForConversation(conv), amqptransport.Options{
		InboundQueue: cfg.AMQP.InboundQueue,
		ReplyQueue:   cfg.AMQP.ReplyQueue,
		Exchange:     cfg.AMQP.Exchange,
		Workers:      cfg.TransportWorkers,
	})
	return func(ctx context.Context) error {
		defer conn.Close()
		defer ch.Close()
		return mq.Run(ctx)
	}, nil
}

// purgeReceipts deletes expired idempotency receipts every interval until
// ctx is done.
func purgeReceipts(ctx context.Context, db *gorm.DB, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredReceipts(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("purge expired receipts")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("expired receipts purged")
			}
		}
	}
}
