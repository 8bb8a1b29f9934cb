package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexiqai/translation-gateway/internal/gateway"
	"github.com/lexiqai/translation-gateway/internal/resilience"
	"github.com/lexiqai/translation-gateway/internal/session"
)

// errSessionOver stops the listen loop without reconnecting
var errSessionOver = errors.New("session ended")

func listenCmd() *cobra.Command {
	var (
		language    string
		displayName string
		password    string
		saveDir     string
	)

	cmd := &cobra.Command{
		Use:   "listen SESSION_ID",
		Short: "Join a session and print translations as they arrive",
		Long: `Join a session as a listener in one target language.

The connection is re-established with backoff if it drops; only translations
produced after each join are received.

Examples:
  relayctl listen K7Q2ZD --lang es
  relayctl listen K7Q2ZD --lang ar --save-dir ./clips`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID := strings.ToUpper(args[0])

			if saveDir != "" {
				if err := os.MkdirAll(saveDir, 0755); err != nil {
					return fmt.Errorf("creating save directory: %w", err)
				}
			}

			for {
				err := listenOnce(ctx, sessionID, gateway.ClientMessage{
					Type:           gateway.TypeJoinSession,
					SessionID:      sessionID,
					TargetLanguage: language,
					DisplayName:    displayName,
					Password:       password,
				}, saveDir)

				switch {
				case errors.Is(err, errSessionOver), ctx.Err() != nil:
					return nil
				case !errors.Is(err, errDisconnected):
					return err
				}
				logger.Warn().Err(err).Msg("Lost connection, rejoining")
			}
		},
	}

	cmd.Flags().StringVarP(&language, "lang", "l", "en", "target language")
	cmd.Flags().StringVar(&displayName, "name", "relayctl", "display name")
	cmd.Flags().StringVar(&password, "password", "", "session password")
	cmd.Flags().StringVar(&saveDir, "save-dir", "", "write received audio clips to this directory")

	return cmd
}

func listenOnce(ctx context.Context, sessionID string, join gateway.ClientMessage, saveDir string) error {
	var (
		c      *client
		joined gateway.JoinedData
	)
	cfg := resilience.DefaultReconnectConfig()
	cfg.GiveUp = func(err error) bool {
		var reqErr *requestError
		return errors.As(err, &reqErr)
	}
	err := resilience.Reconnect(ctx, func(ctx context.Context) error {
		var err error
		if c, err = dial(ctx, serverURL, logger); err != nil {
			return err
		}
		if err = c.request(ctx, join, &joined); err != nil {
			c.close()
			return err
		}
		return nil
	}, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	logger.Info().Str("session_id", sessionID).Str("subscriber_id", joined.SubscriberID).Str("language", join.TargetLanguage).Msg("Joined session")

	for {
		select {
		case msg := <-c.events:
			if err := handleListenerEvent(msg, saveDir); err != nil {
				return err
			}
		case <-c.done:
			return errDisconnected
		case <-ctx.Done():
			leaveCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			c.request(leaveCtx, gateway.ClientMessage{Type: gateway.TypeLeaveSession, SessionID: sessionID, SubscriberID: joined.SubscriberID}, nil)
			cancel()
			return ctx.Err()
		}
	}
}

func handleListenerEvent(msg message, saveDir string) error {
	switch msg.Type {
	case session.EventPersonalTranslation:
		var data session.PersonalTranslationData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return nil
		}
		if !data.Translated {
			fmt.Printf("#%d %s (no %s translation)\n", data.Sequence, data.Original.Text, data.Language)
			return nil
		}
		fmt.Printf("#%d %s\n    %s: %s\n", data.Sequence, data.Original.Text, data.Language, data.Text)
		if saveDir != "" && len(data.Audio) > 0 {
			path := filepath.Join(saveDir, fmt.Sprintf("%06d_%s.wav", data.Sequence, data.Language))
			if err := os.WriteFile(path, data.Audio, 0644); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Failed to save clip")
			}
		}

	case session.EventConnectionQuality:
		var data session.ConnectionQualityData
		if json.Unmarshal(msg.Data, &data) == nil {
			logger.Debug().Int64("latency_ms", data.LatencyMs).Str("tier", data.Tier).Msg("Connection quality")
		}

	case session.EventBroadcasterDisconnected, session.EventBroadcasterReconnected, session.EventSessionStatusChanged:
		logger.Info().Str("event", msg.Type).RawJSON("data", msg.Data).Msg("Session update")

	case session.EventSessionEnded:
		logger.Info().RawJSON("data", msg.Data).Msg("Session ended")
		return errSessionOver
	}
	return nil
}
