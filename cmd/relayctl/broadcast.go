package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiqai/translation-gateway/internal/audio"
	"github.com/lexiqai/translation-gateway/internal/gateway"
	"github.com/lexiqai/translation-gateway/internal/session"
)

func broadcastCmd() *cobra.Command {
	var (
		files    []string
		title    string
		language string
		password string
		pace     bool
		drain    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Create a session and stream audio files into it",
		Long: `Create a session, start it, and send each file as one audio chunk.

Files must be self-contained WAV, Ogg or WebM clips.

Examples:
  relayctl broadcast --file intro.wav --file part2.wav --lang en
  relayctl broadcast --file talk.ogg --title "Keynote" --password secret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 {
				return fmt.Errorf("at least one --file is required")
			}
			ctx := cmd.Context()

			c, err := dial(ctx, serverURL, logger)
			if err != nil {
				return err
			}
			defer c.close()

			var created gateway.CreatedData
			if err := c.request(ctx, gateway.ClientMessage{
				Type:           gateway.TypeCreateSession,
				Title:          title,
				SourceLanguage: language,
				Password:       password,
			}, &created); err != nil {
				return fmt.Errorf("createSession: %w", err)
			}
			fmt.Printf("Session %s (broadcaster key %s)\n", created.SessionID, created.BroadcasterKey)

			if err := c.request(ctx, gateway.ClientMessage{Type: gateway.TypeStartBroadcast}, nil); err != nil {
				return fmt.Errorf("startBroadcast: %w", err)
			}

			go printBroadcasterEvents(c)

			codec := audio.NewCodec(0)
			for _, path := range files {
				payload, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}

				var accepted gateway.ChunkAcceptedData
				if err := c.request(ctx, gateway.ClientMessage{Type: gateway.TypeAudioChunk, Payload: payload}, &accepted); err != nil {
					logger.Error().Err(err).Str("file", path).Msg("Chunk rejected")
					continue
				}
				logger.Info().Str("file", path).Uint64("sequence", accepted.Sequence).Int("bytes", len(payload)).Msg("Chunk sent")

				if pace {
					if chunk, err := codec.Decode(payload); err == nil && chunk.Duration > 0 {
						select {
						case <-time.After(chunk.Duration):
						case <-ctx.Done():
							return ctx.Err()
						}
					}
				}
			}

			select {
			case <-time.After(drain):
			case <-ctx.Done():
			}
			if err := c.request(ctx, gateway.ClientMessage{Type: gateway.TypeEndSession}, nil); err != nil {
				return fmt.Errorf("endSession: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "audio file to send as one chunk (repeatable)")
	cmd.Flags().StringVar(&title, "title", "relayctl broadcast", "session title")
	cmd.Flags().StringVar(&language, "lang", "en", "source language")
	cmd.Flags().StringVar(&password, "password", "", "optional session password")
	cmd.Flags().BoolVar(&pace, "pace", true, "wait for each clip's duration before sending the next")
	cmd.Flags().DurationVar(&drain, "drain", 5*time.Second, "how long to wait for results before ending the session")

	return cmd
}

func printBroadcasterEvents(c *client) {
	for {
		select {
		case msg := <-c.events:
			switch msg.Type {
			case session.EventAudioProcessed:
				var data session.AudioProcessedData
				if json.Unmarshal(msg.Data, &data) == nil {
					logger.Info().
						Uint64("sequence", data.Sequence).
						Int64("processing_ms", data.ProcessingTimeMs).
						Int("languages", data.Languages).
						Bool("silent", data.Silent).
						Msg("Chunk processed")
				}
			case session.EventChunkDropped, session.EventProcessingError:
				logger.Warn().Str("event", msg.Type).RawJSON("data", msg.Data).Msg("Gateway reported a problem")
			case session.EventSessionEnded:
				logger.Info().RawJSON("data", msg.Data).Msg("Session ended")
			}
		case <-c.done:
			return
		}
	}
}
